package service

import (
	"errors"
	"html"
	"reflect"
	"strings"

	"lanchat/internal/model"
	"lanchat/internal/protocol"
	"lanchat/pkg/errorx"
	"lanchat/pkg/password"

	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate   = validator.New()
	trans      ut.Translator
	htmlPolicy = bluemonday.StrictPolicy()
)

func init() {
	// 错误信息使用 label 中的中文字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("label")
	})

	zhT := zh.New()
	trans, _ = ut.New(zhT, zhT).GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}
	overrideTranslation("required", "{0}不能为空")
	overrideTranslation("max", "{0}长度不能超过{1}个字符")
}

func overrideTranslation(tag, text string) {
	err := validate.RegisterTranslation(tag, trans, func(t ut.Translator) error {
		return t.Add(tag, text, true)
	}, func(t ut.Translator, fe validator.FieldError) string {
		msg, err := t.T(tag, fe.Field(), fe.Param())
		if err != nil {
			return fe.Error()
		}
		return msg
	})
	if err != nil {
		panic(err)
	}
}

type registerInput struct {
	Username   string `validate:"required,max=64" label:"用户名"`
	Password   string `validate:"required" label:"密码"`
	Nickname   string `validate:"required,max=64" label:"昵称"`
	AvatarPath string `validate:"max=255" label:"头像路径"`
}

func newRegisterInput(r *protocol.RegisterRequest) (*registerInput, error) {
	in := &registerInput{
		Username:   strings.TrimSpace(r.Username),
		Password:   r.Password,
		Nickname:   cleanText(r.Nickname),
		AvatarPath: strings.TrimSpace(r.AvatarPath),
	}
	if in.AvatarPath == "" {
		in.AvatarPath = model.DefaultAvatar
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, errorx.InvalidParam(verrs[0].Translate(trans))
		}
		return nil, errorx.ErrInvalidParam
	}
	if len(in.Password) > password.MaxLength {
		return nil, errorx.InvalidParam("密码过长")
	}
	return in, nil
}

func cleanRemark(remark string) (string, error) {
	remark = cleanText(remark)
	if err := validate.Var(remark, "max=64"); err != nil {
		return "", errorx.InvalidParam("备注名过长")
	}
	return remark, nil
}

// cleanText 去除 HTML 标签和空字节，保留普通字符
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = htmlPolicy.Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(s))
}
