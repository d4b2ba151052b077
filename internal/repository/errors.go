package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在（空列表不是错误）
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateUsername 用户名唯一索引冲突
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrAlreadyFriends 好友对唯一索引冲突
	ErrAlreadyFriends = errors.New("already friends")
)

// mysql ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// isDuplicate 判断是否为唯一约束冲突
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	// 驱动未实现错误翻译时兜底
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
