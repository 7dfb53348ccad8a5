package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/taskboard/internal/model"
)

// maxRequestBodySize はリクエストボディの上限（バイト）。
const maxRequestBodySize = 64 << 10

// validate はリクエスト構造体の検証に使用する共有インスタンス。
// フィールド名はlabelタグ（なければjsonタグ）で報告する。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate はJSONボディをdstにデコードし、構造体タグで検証する。
// 解析失敗はINVALID_REQUEST、検証失敗は最初のフィールドのVALIDATION_ERRORを返す。
func decodeAndValidate(r *http.Request, dst any) *model.APIError {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError()
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return model.NewValidationError(validationMessage(fieldErrs[0]))
		}
		return model.NewInvalidRequestError()
	}
	return nil
}

// validationMessage はフィールドエラーをユーザー向けメッセージに変換する。
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sを入力してください。", fe.Field())
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください。", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%sは%s文字以上で入力してください。", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%sの形式が正しくありません。", fe.Field())
	default:
		return fmt.Sprintf("%sが正しくありません。", fe.Field())
	}
}

// dueDateLayouts は受け付ける期限の形式。タイムゾーンのない形式はUTCとして扱う。
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDueDate は期限文字列を解析する。nilまたは空文字列は期限なしを表す。
func parseDueDate(s *string) (*time.Time, *model.APIError) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range dueDateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, model.NewValidationError("期限の形式が正しくありません。")
}
