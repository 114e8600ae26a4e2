package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DecodeJSON 将请求体解码到 dst，空请求体不视为错误
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// FieldTypeError 判断解码错误是否为字段类型不匹配，并返回字段名。
// 请求体整体类型不对时字段名为空。
func FieldTypeError(err error) (string, bool) {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return "", false
	}
	return typeErr.Field, true
}
