package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"veo-studio-server/modules/common/config"
)

// Setup - 로그 출력 설정 (LOG_FILE 있으면 stdout + 로테이션 파일)
// 반환된 Closer는 종료 시 닫아야 함
func Setup(cfg *config.Config) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.Printf("📝 Logging to %s (max %dMB, %d backups)", cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)

	return rotator
}
