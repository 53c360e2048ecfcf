package export

import "log/slog"

// Progress is one step of a multi-segment export.
type Progress struct {
	Kind    string
	Percent float64
	Segment int
	Total   int
	Message string
}

type ProgressFunc func(Progress)

// LogProgress reports progress events through logger.
func LogProgress(logger *slog.Logger) ProgressFunc {
	return func(p Progress) {
		logger.Info("export progress",
			"kind", p.Kind,
			"percent", p.Percent,
			"segment", p.Segment,
			"total", p.Total,
			"message", p.Message,
		)
	}
}

func segmentProgress(kind string, index, total int) Progress {
	return Progress{
		Kind:    kind,
		Percent: float64(index+1) / float64(total) * 80,
		Segment: index + 1,
		Total:   total,
		Message: "processing segment",
	}
}
