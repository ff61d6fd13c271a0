package ingest

import (
	"io"
	"net/http"
)

// filePart 读取文件类 part 的完整内容
// 固件把相机帧作为文件上传；普通表单字段这里不认
func filePart(r *http.Request, name string) ([]byte, bool) {
	if r.MultipartForm == nil {
		return nil, false
	}
	headers := r.MultipartForm.File[name]
	if len(headers) == 0 {
		return nil, false
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false
	}
	return data, true
}

// textPart 读取文本类 part：优先表单字段，其次文件类 part
// （不同固件版本对 JSON part 的打包方式不一致）
func textPart(r *http.Request, name string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	if values := r.MultipartForm.Value[name]; len(values) > 0 {
		return values[0], true
	}
	if data, ok := filePart(r, name); ok {
		return string(data), true
	}
	return "", false
}
