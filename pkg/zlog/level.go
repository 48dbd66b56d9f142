package zlog

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var dynamicLevel = zap.NewAtomicLevel() // 全局可变级别
var levelName atomic.Value              // 字符串形式

func initLevel(lvl string) {
	levelName.Store(strings.ToLower(lvl))
	dynamicLevel.SetLevel(parseLevel(lvl))
}

func validLevel(lvl string) bool {
	switch strings.ToLower(lvl) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// SetLevel 热更新日志级别，非法级别返回 false
func SetLevel(lvl string) bool {
	if !validLevel(lvl) {
		return false
	}
	dynamicLevel.SetLevel(parseLevel(lvl))
	levelName.Store(strings.ToLower(lvl))
	return true
}

// GetLevel 返回当前级别字符串
func GetLevel() string {
	if v, ok := levelName.Load().(string); ok {
		return v
	}
	return "info"
}

type levelBody struct {
	Level string `json:"level"`
	Error string `json:"error,omitempty"`
}

// LevelHTTPHandler 注册到 /log/level，GET 查询，PUT ?v=debug 修改
func LevelHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPut {
			lvl := r.URL.Query().Get("v")
			if lvl == "" {
				lvl = r.FormValue("v")
			}
			if !SetLevel(lvl) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(levelBody{Level: GetLevel(), Error: "unknown level " + lvl})
				return
			}
			zap.L().Info("log level changed", zap.String("now", GetLevel()))
		}
		_ = json.NewEncoder(w).Encode(levelBody{Level: GetLevel()})
	}
}
