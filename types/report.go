package types

import "time"

// Failure 描述一条失败记录，进入运行报告。
type Failure struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// RunReport 是一次运行的结构化最终报告。
// 无论正常结束还是中途停止，报告都如实反映已产生的花费与产物。
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalRequested int `json:"total_requested"`
	Generated      int `json:"generated"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`

	TotalCost          Amount  `json:"total_cost_micros"`
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	SuccessRatePercent float64 `json:"success_rate_percent"`

	// Halted 表示运行因负担能力预检失败或账本损坏而提前停止。
	Halted     bool   `json:"halted,omitempty"`
	HaltReason string `json:"halt_reason,omitempty"`

	Failures  []Failure      `json:"failures,omitempty"`
	Artifacts []ArtifactInfo `json:"artifacts,omitempty"`
}

// BuildRunReport 根据结果集汇总报告。totalRequested 为准入前的原始请求数，
// 可大于结果数（准入拒绝的请求只计入 Skipped 而无逐条结果）。
func BuildRunReport(runID string, startedAt, finishedAt time.Time, totalRequested int, results []GenerationResult) RunReport {
	r := RunReport{
		RunID:          runID,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		TotalRequested: totalRequested,
		ElapsedSeconds: finishedAt.Sub(startedAt).Seconds(),
	}

	for _, res := range results {
		switch res.Status {
		case ResultGenerated:
			r.Generated++
			r.TotalCost += res.ActualCost
			r.Artifacts = append(r.Artifacts, ArtifactInfo{
				RequestID:  res.RequestID,
				Filename:   res.Filename,
				AssetType:  res.AssetType,
				Reference:  res.Reference,
				ActualCost: res.ActualCost,
			})
		case ResultFailed:
			r.Failed++
			r.Failures = append(r.Failures, Failure{RequestID: res.RequestID, Reason: res.Reason})
		case ResultSkipped:
			r.Skipped++
		}
	}

	// 结果未覆盖的请求视为跳过（例如准入整体拒绝时）。
	if accounted := r.Generated + r.Failed + r.Skipped; accounted < totalRequested {
		r.Skipped += totalRequested - accounted
	}

	if r.TotalRequested > 0 {
		r.SuccessRatePercent = float64(r.Generated) / float64(r.TotalRequested) * 100
	}
	return r
}
