package logger

import "log"

// InitLogger 初始化标准日志器
func InitLogger() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("📋 日志器已初始化")
}
