package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"lanchat/config"
	"lanchat/internal/model"
	"lanchat/internal/repository"
	dbPkg "lanchat/pkg/db"

	"gorm.io/gorm"
)

func main() {
	statusOnly := flag.Bool("statuses", false, "只把所有用户置为离线，不删除数据")
	yes := flag.Bool("yes", false, "跳过确认")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	db, err := dbPkg.Open(cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	defer dbPkg.Close(db)

	fmt.Println("数据库连接成功")
	fmt.Printf("驱动: %s\n", cfg.Database.Driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *statusOnly {
		n, err := repository.NewStore(db).ResetStatuses(ctx)
		if err != nil {
			log.Fatalf("重置在线状态失败: %v", err)
		}
		fmt.Printf("已将 %d 个用户置为离线\n", n)
		return
	}

	if !*yes && !confirm() {
		fmt.Println("操作已取消")
		return
	}

	// 子表先删
	tables := []struct {
		name  string
		model any
	}{
		{"messages", &model.Message{}},
		{"friendships", &model.Friendship{}},
		{"users", &model.User{}},
	}
	all := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, t := range tables {
		fmt.Printf("清空表 %s... ", t.name)
		if err := all.Delete(t.model).Error; err != nil {
			fmt.Printf("失败: %v\n", err)
			continue
		}
		fmt.Println("成功")
	}

	fmt.Println("\n重置自增ID...")
	for _, t := range tables {
		fmt.Printf("重置 %s... ", t.name)
		if err := resetSequence(db.WithContext(ctx), cfg.Database.Driver, t.name); err != nil {
			fmt.Printf("失败: %v\n", err)
			continue
		}
		fmt.Println("成功")
	}

	fmt.Println("\n数据库重置完成，表结构保留")
}

func confirm() bool {
	fmt.Print("\n警告：此操作将清空 [messages, friendships, users] 表中的所有数据！\n")
	fmt.Print("输入 'YES' 确认: ")
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line) == "YES"
}

func resetSequence(db *gorm.DB, driver, table string) error {
	switch driver {
	case "mysql":
		return db.Exec(fmt.Sprintf("ALTER TABLE `%s` AUTO_INCREMENT = 1", table)).Error
	case "postgres":
		return db.Exec(fmt.Sprintf(`ALTER SEQUENCE "%s_id_seq" RESTART WITH 1`, table)).Error
	default:
		// sqlite 的 AUTOINCREMENT 计数保存在 sqlite_sequence，表不存在时忽略
		if !db.Migrator().HasTable("sqlite_sequence") {
			return nil
		}
		return db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table).Error
	}
}
