// Package evaluator 根据读数载荷中的触发标记派生报警草稿
package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// ReadingPayload 固件上报的读数载荷（`reading` multipart part 的 JSON）
type ReadingPayload struct {
	TempC    *float64 `json:"tempC"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
	GasRes   *float64 `json:"gasRes"`
	IAQ      *float64 `json:"iaq"`
	TMin     *float64 `json:"tMin"`
	TMax     *float64 `json:"tMax"`
	TAvg     *float64 `json:"tAvg"`

	// 触发信息：显式标记列表优先，其次布尔快捷字段，
	// 两者都为空时才回退到自由文本的触发原因
	Flags              []string `json:"flags"`
	FeverDetected      bool     `json:"feverDetected"`
	AirQualityElevated bool     `json:"airQualityElevated"`
	TriggerReason      string   `json:"triggerReason"`

	// 报警消息用的上下文字段
	FeverThreshold *float64 `json:"feverThreshold"`
	GasRatio       *float64 `json:"gasRatio"`
}

// genericTriggerReason 固件在非事件触发（如周期上报）时填的默认原因
const genericTriggerReason = "alert"

var (
	camelBoundaryRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	illegalCharRe   = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	repeatedSepRe   = regexp.MustCompile(`([-_])[-_]+`)
	spaceRunRe      = regexp.MustCompile(`\s+`)
)

// kindRule 标记→报警类型的规则（子串匹配，按优先级排列，先命中先赢）
// 已知模糊点：含多个关键词的标记（如 "gas-sensor-offline"）按表序归类，
// 这里会归为 AIR_QUALITY 而不是 DEVICE_OFFLINE
type kindRule struct {
	kind    models.AlertKind
	substrs []string
}

var kindRules = []kindRule{
	{models.AlertTempFever, []string{"fever", "temp-fever", "temperature"}},
	{models.AlertAirQuality, []string{"air-quality", "airquality", "iaq", "gas"}},
	{models.AlertDeviceOffline, []string{"offline", "disconnected", "no-signal"}},
}

// Evaluator 报警派生引擎
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator 创建派生引擎
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Derive 从读数载荷派生报警草稿
// 每种类型最多一条（按首次出现顺序）；无法识别的标记只记日志，不报错
func (e *Evaluator) Derive(payload ReadingPayload) []models.AlertDraft {
	rawFlags := collectFlags(payload)

	var kinds []models.AlertKind
	seen := map[models.AlertKind]bool{}
	var unknown []string

	for _, raw := range rawFlags {
		normalized := NormalizeFlag(raw)
		if normalized == "" {
			continue
		}
		kind, ok := classify(normalized)
		if !ok {
			unknown = append(unknown, normalized)
			continue
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}

	if len(unknown) > 0 {
		e.logger.Warn("unrecognized trigger flags",
			zap.Strings("flags", unknown),
		)
	}

	drafts := make([]models.AlertDraft, 0, len(kinds))
	for _, kind := range kinds {
		drafts = append(drafts, buildDraft(kind, payload))
	}
	return drafts
}

// collectFlags 按优先级收集触发标记：
// 显式 flags → 布尔快捷字段 → （仅当前两者皆空）触发原因回退
func collectFlags(payload ReadingPayload) []string {
	var flags []string
	flags = append(flags, payload.Flags...)
	if payload.FeverDetected {
		flags = append(flags, "fever-detected")
	}
	if payload.AirQualityElevated {
		flags = append(flags, "air-quality-elevated")
	}
	if len(flags) == 0 && payload.TriggerReason != "" {
		flags = append(flags, payload.TriggerReason)
	}
	return flags
}

// NormalizeFlag 规整触发标记：
// 去空白 → 驼峰转 kebab → 非法字符替换为 "-" → 折叠重复分隔符 → 小写
func NormalizeFlag(raw string) string {
	s := strings.TrimSpace(raw)
	s = camelBoundaryRe.ReplaceAllString(s, "$1-$2")
	s = illegalCharRe.ReplaceAllString(s, "-")
	s = repeatedSepRe.ReplaceAllString(s, "$1")
	return strings.ToLower(s)
}

func classify(normalized string) (models.AlertKind, bool) {
	for _, rule := range kindRules {
		for _, sub := range rule.substrs {
			if strings.Contains(normalized, sub) {
				return rule.kind, true
			}
		}
	}
	return "", false
}

func buildDraft(kind models.AlertKind, payload ReadingPayload) models.AlertDraft {
	switch kind {
	case models.AlertTempFever:
		return models.AlertDraft{
			Kind:     kind,
			Severity: models.SeverityCrit,
			Message:  feverMessage(payload),
		}
	case models.AlertAirQuality:
		return models.AlertDraft{
			Kind:     kind,
			Severity: models.SeverityWarn,
			Message:  airQualityMessage(payload),
		}
	case models.AlertDeviceOffline:
		return models.AlertDraft{
			Kind:     kind,
			Severity: models.SeverityWarn,
			Message:  offlineMessage(payload),
		}
	default:
		return models.AlertDraft{
			Kind:     kind,
			Severity: models.SeverityWarn,
			Message:  "alert triggered",
		}
	}
}

// feverMessage 体温报警消息：最高温/阈值保留1位小数，超出量保留2位且带符号
func feverMessage(payload ReadingPayload) string {
	parts := []string{}
	if payload.TMax != nil {
		parts = append(parts, fmt.Sprintf("max %.1f°C", *payload.TMax))
	}
	if payload.FeverThreshold != nil {
		parts = append(parts, fmt.Sprintf("threshold %.1f°C", *payload.FeverThreshold))
	}
	if payload.TMax != nil && payload.FeverThreshold != nil {
		parts = append(parts, fmt.Sprintf("delta %+.2f°C", *payload.TMax-*payload.FeverThreshold))
	}
	if len(parts) == 0 {
		return "Fever pattern detected"
	}
	return "Fever pattern detected: " + strings.Join(parts, ", ")
}

// airQualityMessage 空气质量报警消息：IAQ 取整，gas ratio 保留2位小数
func airQualityMessage(payload ReadingPayload) string {
	parts := []string{}
	if payload.IAQ != nil {
		parts = append(parts, fmt.Sprintf("IAQ %.0f", *payload.IAQ))
	}
	if payload.GasRatio != nil {
		parts = append(parts, fmt.Sprintf("gas ratio %.2f", *payload.GasRatio))
	}
	if len(parts) == 0 {
		return "Air quality degraded"
	}
	return "Air quality degraded: " + strings.Join(parts, ", ")
}

// offlineMessage 设备离线消息：引用人类可读的触发原因（默认原因除外）
func offlineMessage(payload ReadingPayload) string {
	reason := strings.TrimSpace(payload.TriggerReason)
	if reason == "" || NormalizeFlag(reason) == genericTriggerReason {
		return "Device reported offline"
	}
	return "Device reported offline: " + HumanizeReason(reason)
}

// HumanizeReason 触发原因转可读文本：下划线/连字符转空格，驼峰边界断词，小写
func HumanizeReason(raw string) string {
	s := camelBoundaryRe.ReplaceAllString(strings.TrimSpace(raw), "$1 $2")
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
