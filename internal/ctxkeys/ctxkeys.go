// Package ctxkeys 定义在 context 中传递的调度与请求标识。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	batchIDKey   contextKey = "batch_id"
	botIDKey     contextKey = "bot_id"
	requestIDKey contextKey = "request_id"
)

// WithBatchID 设置批次 ID
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchID 获取批次 ID
func BatchID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(batchIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithBotID 设置 bot 编号（批内从 1 开始）
func WithBotID(ctx context.Context, botID int) context.Context {
	return context.WithValue(ctx, botIDKey, botID)
}

// BotID 获取 bot 编号
func BotID(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(botIDKey).(int)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID，不存在时返回空字符串
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
