package timeline

import (
	"sort"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

type DisciplineStat struct {
	Discipline models.Discipline             `json:"discipline"`
	Total      int                           `json:"total"`
	ByStatus   map[models.QuestionStatus]int `json:"byStatus"`
	HighCount  int                           `json:"highImportance"`
	// AnsweredRatio counts answered questions against every question that
	// was not discarded.
	AnsweredRatio float64 `json:"answeredRatio"`
}

func DisciplineStats(questions []models.Question) []DisciplineStat {
	index := make(map[models.Discipline]*DisciplineStat)
	for _, q := range questions {
		stat, ok := index[q.Discipline]
		if !ok {
			stat = &DisciplineStat{Discipline: q.Discipline, ByStatus: make(map[models.QuestionStatus]int)}
			index[q.Discipline] = stat
		}
		stat.Total++
		stat.ByStatus[q.Status]++
		if q.Importance == models.ImportanceHigh {
			stat.HighCount++
		}
	}

	out := make([]DisciplineStat, 0, len(index))
	for _, stat := range index {
		live := stat.Total - stat.ByStatus[models.QuestionDiscarded]
		if live > 0 {
			stat.AnsweredRatio = float64(stat.ByStatus[models.QuestionAnswered]) / float64(live)
		}
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Discipline < out[j].Discipline })
	return out
}
