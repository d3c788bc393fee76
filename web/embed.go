// Package web 内嵌控制面板的静态文件
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Handler 返回控制面板的文件服务，index.html 挂在根路径
func Handler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// static 目录在编译期嵌入，Sub 只会因路径写错而失败
		panic(err)
	}
	return http.FileServerFS(sub)
}
