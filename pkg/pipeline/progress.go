package pipeline

// Stage names the pipeline phases, in execution order.
type Stage string

const (
	StageNormalize   Stage = "normalize"
	StageDeduplicate Stage = "deduplicate"
	StageBatch       Stage = "batch"
	StagePostLink    Stage = "post_link"
	StageDone        Stage = "done"
)

// Progress is a point-in-time snapshot emitted after each phase and
// after each batch. Consumers drive progress bars off BatchesDone and
// BatchesTotal.
type Progress struct {
	Stage        Stage
	BatchesDone  int
	BatchesTotal int
	Processed    int64
	Failed       int64
}

// emitProgress sends a snapshot without ever blocking the pipeline. A
// slow or absent consumer just misses intermediate updates.
func (o *Orchestrator) emitProgress(p Progress) {
	if o.progress == nil {
		return
	}
	select {
	case o.progress <- p:
	default:
	}
}
