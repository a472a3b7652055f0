package httpapi

import (
	"strconv"

	"sensor-service/internal/bucket"
	"sensor-service/internal/store"
	"sensor-service/internal/telemetry"
)

type ingestRequest struct {
	MACAddress  string   `json:"mac_address"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	IPAddress   string   `json:"ip_address"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type deviceRefDTO struct {
	MACAddress string `json:"mac_address"`
	Name       string `json:"name"`
}

type readingDTO struct {
	ID          uint          `json:"id,omitempty"`
	Timestamp   string        `json:"timestamp"`
	Temperature float64       `json:"temperature"`
	Humidity    float64       `json:"humidity"`
	Pressure    float64       `json:"pressure"`
	Device      *deviceRefDTO `json:"device,omitempty"`
}

type valueDTO struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

type latestDTO struct {
	ESPID         uint      `json:"esp_id"`
	ESPName       string    `json:"esp_name"`
	IPAddress     string    `json:"ip_address"`
	Status        float64   `json:"status"`
	CurrentValue  *valueDTO `json:"current_value"`
	PreviousValue *valueDTO `json:"previous_value"`
}

type userDTO struct {
	ID        uint    `json:"id"`
	Username  string  `json:"username"`
	Status    float64 `json:"status"`
	CreatedAt string  `json:"created_at"`
}

type deviceDTO struct {
	ID          uint    `json:"id"`
	MACAddress  string  `json:"mac_address"`
	IPAddress   string  `json:"ip_address"`
	Owner       string  `json:"owner"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	IsActive    float64 `json:"is_active"`
}

type intervalDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// seriesDTO maps bucket keys to means. The key layout sorts lexically in
// time order, so encoding/json emits buckets oldest first.
type seriesDTO map[string]float64

func toReadingDTO(r store.Reading) readingDTO {
	out := readingDTO{
		ID:          r.ID,
		Timestamp:   r.Timestamp.UTC().Format(telemetry.TimeLayout),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
	}
	if r.Device != nil {
		out.Device = &deviceRefDTO{MACAddress: r.Device.MACAddress, Name: r.Device.Name}
	}
	return out
}

func toReadingDTOs(rows []store.Reading) []readingDTO {
	out := make([]readingDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toReadingDTO(r))
	}
	return out
}

func toValueDTO(r *store.Reading) *valueDTO {
	if r == nil {
		return nil
	}
	return &valueDTO{
		Timestamp:   r.Timestamp.UTC().Format(telemetry.TimeLayout),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
	}
}

func toLatestDTO(l telemetry.DeviceLatest) latestDTO {
	ip := l.Device.IPAddress
	if ip == "" {
		ip = "N/A"
	}
	return latestDTO{
		ESPID:         l.Device.ID,
		ESPName:       l.Device.Name,
		IPAddress:     ip,
		Status:        l.Device.IsActive,
		CurrentValue:  toValueDTO(l.Current),
		PreviousValue: toValueDTO(l.Previous),
	}
}

func toUserDTO(u store.User) userDTO {
	return userDTO{ID: u.ID, Username: u.Username, Status: u.Status, CreatedAt: u.CreatedAt.UTC().Format(telemetry.TimeLayout)}
}

func toDeviceDTO(d store.Device) deviceDTO {
	out := deviceDTO{
		ID:          d.ID,
		MACAddress:  d.MACAddress,
		IPAddress:   d.IPAddress,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.IsActive,
	}
	if d.Owner != nil {
		out.Owner = d.Owner.Username
	}
	return out
}

func toSeriesDTO(s bucket.Series) seriesDTO {
	out := make(seriesDTO, len(s))
	for _, p := range s {
		out[p.Start.UTC().Format(telemetry.BucketLayout)] = p.Mean
	}
	return out
}

func toMetricsDTO(perMetric map[bucket.Metric]bucket.Series, metrics []bucket.Metric) map[string]seriesDTO {
	out := make(map[string]seriesDTO, len(metrics))
	for _, m := range metrics {
		out[string(m)] = toSeriesDTO(perMetric[m])
	}
	return out
}

// toResultDTO keys the aggregation by device id.
func toResultDTO(res bucket.Result) map[string]map[string]seriesDTO {
	out := make(map[string]map[string]seriesDTO, len(res))
	for id, perMetric := range res {
		out[strconv.FormatUint(uint64(id), 10)] = toMetricsDTO(perMetric, bucket.Metrics)
	}
	return out
}

func toChartDTO(chart telemetry.ChartSeries) map[string]map[string]seriesDTO {
	out := make(map[string]map[string]seriesDTO, len(chart))
	for name, perMetric := range chart {
		metrics := make([]bucket.Metric, 0, len(perMetric))
		for _, m := range bucket.Metrics {
			if _, ok := perMetric[m]; ok {
				metrics = append(metrics, m)
			}
		}
		out[name] = toMetricsDTO(perMetric, metrics)
	}
	return out
}
