package notifier

import (
	"fmt"
	"strings"
	"time"

	"DeepTrader/internal/metrics"
	"DeepTrader/internal/model"
)

// FormatRunStart announces a new training or evaluation run.
func FormatRunStart(info model.RunInfo, initialCapital float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚀 <b>DeepTrader 训练开始</b> | %s\n\n", info.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("交易对: %s (K线周期 %s)\n", info.Symbol, info.Interval))
	b.WriteString(fmt.Sprintf("运行模式: %s\n", info.Mode))
	b.WriteString(fmt.Sprintf("计划回合数: %d\n", info.Episodes))
	b.WriteString(fmt.Sprintf("状态维度: %d\n", info.StateSize))
	b.WriteString(fmt.Sprintf("初始资金: %.2f USDT\n", initialCapital))
	return b.String()
}

// FormatProgress is the per-N-episode progress report.
func FormatProgress(st model.EpisodeStats, totalEpisodes int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>训练进度</b> | 回合 %d/%d\n\n", st.Episode, totalEpisodes))
	b.WriteString(fmt.Sprintf("累计奖励: %+.2f\n", st.TotalReward))
	b.WriteString(fmt.Sprintf("组合净值: %.2f USDT (峰值 %.2f)\n", st.FinalValue, st.PeakValue))
	b.WriteString(fmt.Sprintf("探索率: %.4f\n", st.Epsilon))
	if st.AvgLoss > 0 {
		b.WriteString(fmt.Sprintf("平均损失: %.6f\n", st.AvgLoss))
	}
	b.WriteString(fmt.Sprintf("交易次数: %d (强制平仓 %d)\n", st.Trades, st.ForcedExits))
	return b.String()
}

// FormatRunSummary is the end-of-run report.
func FormatRunSummary(info model.RunInfo, perf metrics.Performance) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏁 <b>训练完成</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("交易对: %s\n", info.Symbol))
	b.WriteString(fmt.Sprintf("完成回合: %d\n", info.Episodes))
	b.WriteString(fmt.Sprintf("最终净值: %.2f USDT\n", info.FinalValue))
	b.WriteString(fmt.Sprintf("历史最佳: %.2f USDT\n\n", info.BestValue))
	b.WriteString(formatPerformanceBody(perf))
	return b.String()
}

// FormatEvalReport is the held-out evaluation report.
func FormatEvalReport(st model.EpisodeStats, perf metrics.Performance) string {
	var b strings.Builder
	b.WriteString("🧪 <b>评估报告</b> (贪婪策略)\n\n")
	b.WriteString(fmt.Sprintf("回测步数: %d\n", st.Steps))
	b.WriteString(fmt.Sprintf("最终净值: %.2f USDT\n", st.FinalValue))
	b.WriteString(fmt.Sprintf("交易次数: %d (强制平仓 %d)\n\n", st.Trades, st.ForcedExits))
	b.WriteString(formatPerformanceBody(perf))
	return b.String()
}

// FormatLiveStop is the shutdown notice for live mode.
func FormatLiveStop(episodes int, bestValue float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🛑 <b>实时训练停止</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("完成回合: %d\n", episodes))
	b.WriteString(fmt.Sprintf("历史最佳: %.2f USDT\n", bestValue))
	b.WriteString("最优模型已保存。\n")
	return b.String()
}

// FormatForcedExit alerts a risk-triggered liquidation during live cycles.
func FormatForcedExit(t model.TradeEvent) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>风控强制平仓</b>\n\n")
	b.WriteString(fmt.Sprintf("时间: %s\n", t.Time.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("成交价: %.2f\n", t.Price))
	b.WriteString(fmt.Sprintf("数量: %.6f\n", t.Units))
	b.WriteString(fmt.Sprintf("已实现盈亏: %+.2f USDT\n", t.RealizedPnL))
	b.WriteString(fmt.Sprintf("平仓后净值: %.2f USDT\n", t.ValueAfter))
	return b.String()
}

// FormatDecision reports the latest greedy intent of a live cycle.
func FormatDecision(d model.Decision, intent model.Intent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📢 <b>最新决策</b> | %s\n\n", intent.Time.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("交易对: %s\n", intent.Symbol))
	b.WriteString(fmt.Sprintf("动作: <b>%s</b>\n", actionLabel(d.Action)))
	b.WriteString(fmt.Sprintf("现价: %.2f\n", intent.Price))
	if intent.Units > 0 {
		b.WriteString(fmt.Sprintf("数量: %.6f\n", intent.Units))
	}
	if len(d.QValues) == model.NumActions {
		b.WriteString(fmt.Sprintf("\nQ值: HOLD %+.4f | BUY %+.4f | SELL %+.4f\n",
			d.QValues[model.ActionHold], d.QValues[model.ActionBuy], d.QValues[model.ActionSell]))
	}
	return b.String()
}

// FormatStatus renders the shared status snapshot, for the /status command.
func FormatStatus(s *model.StatusSnapshot) string {
	if s == nil {
		return "暂无运行记录。"
	}
	var b strings.Builder
	b.WriteString("📦 <b>运行状态</b>\n\n")
	b.WriteString(fmt.Sprintf("状态: %s (%s)\n", stateLabel(s.State), s.Mode))
	b.WriteString(fmt.Sprintf("交易对: %s\n", s.Symbol))
	b.WriteString(fmt.Sprintf("回合: %d/%d\n", s.Episode, s.TotalEpisodes))
	b.WriteString(fmt.Sprintf("累计奖励: %+.2f\n", s.TotalReward))
	b.WriteString(fmt.Sprintf("组合净值: %.2f USDT\n", s.PortfolioValue))
	b.WriteString(fmt.Sprintf("历史最佳: %.2f USDT\n", s.BestValue))
	b.WriteString(fmt.Sprintf("探索率: %.4f\n", s.Epsilon))
	b.WriteString(fmt.Sprintf("更新时间: %s\n", s.UpdatedAt.Format("2006-01-02 15:04")))
	return b.String()
}

// FormatPerformance renders a metrics report, for the /performance command.
func FormatPerformance(perf metrics.Performance) string {
	var b strings.Builder
	b.WriteString("📈 <b>绩效指标</b>\n\n")
	b.WriteString(formatPerformanceBody(perf))
	return b.String()
}

// FormatError reports a fatal run failure.
func FormatError(stage string, err error) string {
	return fmt.Sprintf("❌ <b>运行失败</b>\n\n阶段: %s\n原因: %v\n", stage, err)
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	var b strings.Builder
	b.WriteString("🤖 <b>DeepTrader 命令</b>\n\n")
	b.WriteString("/status - 查看当前运行状态\n")
	b.WriteString("/performance - 查看绩效指标\n")
	b.WriteString("/help - 显示本帮助\n")
	return b.String()
}

func formatPerformanceBody(perf metrics.Performance) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("总收益率: %+.2f%%\n", perf.TotalReturn*100))
	b.WriteString(fmt.Sprintf("单步波动率: %.4f%%\n", perf.Volatility*100))
	b.WriteString(fmt.Sprintf("最大回撤: %.2f%%\n", perf.MaxDrawdown*100))
	b.WriteString(fmt.Sprintf("夏普比率(年化): %.3f\n", perf.Sharpe))
	return b.String()
}

func actionLabel(a model.Action) string {
	switch a {
	case model.ActionBuy:
		return "买入 BUY"
	case model.ActionSell:
		return "卖出 SELL"
	default:
		return "观望 HOLD"
	}
}

func stateLabel(state string) string {
	switch state {
	case model.RunRunning:
		return "运行中 🟢"
	case model.RunFinished:
		return "已完成 ✅"
	case model.RunFailed:
		return "已失败 ❌"
	default:
		return state
	}
}
