package ingest

import "github.com/klienn/swinetrack/internal/models"

// readingFieldMap 读数 JSON 字段 → readings 表字段的显式映射表
// 只接受 JSON 数值；其它类型一律按缺失处理（不信任固件载荷）
type fieldMapping struct {
	external string
	assign   func(*models.Reading, float64)
}

var readingFieldMap = []fieldMapping{
	{"tempC", func(r *models.Reading, v float64) { r.TempC = &v }},       // -> temp_c
	{"humidity", func(r *models.Reading, v float64) { r.Humidity = &v }}, // -> humidity_rh
	{"pressure", func(r *models.Reading, v float64) { r.Pressure = &v }}, // -> pressure_hpa
	{"gasRes", func(r *models.Reading, v float64) { r.GasRes = &v }},     // -> gas_res_ohm
	{"iaq", func(r *models.Reading, v float64) { r.IAQ = &v }},           // -> iaq
	{"tMin", func(r *models.Reading, v float64) { r.TMinC = &v }},        // -> t_min_c
	{"tMax", func(r *models.Reading, v float64) { r.TMaxC = &v }},        // -> t_max_c
	{"tAvg", func(r *models.Reading, v float64) { r.TAvgC = &v }},        // -> t_avg_c
}

// MapReading 把解析出的读数载荷映射为 Reading 行
func MapReading(deviceID string, raw map[string]any) *models.Reading {
	reading := &models.Reading{DeviceID: deviceID}
	for _, m := range readingFieldMap {
		v, ok := raw[m.external]
		if !ok {
			continue
		}
		if f, ok := v.(float64); ok {
			m.assign(reading, f)
		}
	}
	return reading
}
