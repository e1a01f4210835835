package message

import (
	"context"

	"FleetsIM/logger"

	"go.uber.org/zap"
)

// LogReportSink 扇出报告落日志。补偿任务按 fanout_partial 关键字捞出后
// 据正本重投失败接收者（副本幂等，重投安全）。
type LogReportSink struct{}

func (LogReportSink) Report(_ context.Context, r *FanoutReport) {
	if r.State == StateFanoutComplete {
		logger.Debug("fanout complete",
			zap.String("msgId", r.MessageID), zap.String("conv", r.ConversationID),
			zap.Int("recipients", len(r.Succeeded)))
		return
	}
	logger.Error("fanout partial",
		zap.String("msgId", r.MessageID), zap.String("conv", r.ConversationID),
		zap.Strings("failed", r.Failed))
}
