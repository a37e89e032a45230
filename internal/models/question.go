package models

import (
	"strings"
	"time"
)

type QuestionStatus string

const (
	QuestionDraft     QuestionStatus = "draft"
	QuestionPending   QuestionStatus = "pending"
	QuestionApproved  QuestionStatus = "approved"
	QuestionSent      QuestionStatus = "sent"
	QuestionAnswered  QuestionStatus = "answered"
	QuestionDiscarded QuestionStatus = "discarded"
)

var questionStatusRank = map[QuestionStatus]int{
	QuestionDraft:    0,
	QuestionPending:  1,
	QuestionApproved: 2,
	QuestionSent:     3,
	QuestionAnswered: 4,
}

func (s QuestionStatus) Valid() bool {
	if s == QuestionDiscarded {
		return true
	}
	_, ok := questionStatusRank[s]
	return ok
}

// CanTransition reports whether a question may move from one status to
// another. The lifecycle only moves forward; Discarded is reachable from
// Draft or Pending and nothing leaves it.
func CanTransition(from, to QuestionStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from == QuestionDiscarded {
		return false
	}
	if to == QuestionDiscarded {
		return from == QuestionDraft || from == QuestionPending
	}
	return questionStatusRank[to] > questionStatusRank[from]
}

type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

func (i Importance) Valid() bool {
	switch i {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	default:
		return false
	}
}

type Discipline string

const (
	DisciplineCommercial  Discipline = "commercial"
	DisciplineTechnical   Discipline = "technical"
	DisciplineLegal       Discipline = "legal"
	DisciplineFinancial   Discipline = "financial"
	DisciplineSafety      Discipline = "safety"
	DisciplineSchedule    Discipline = "schedule"
	DisciplineQuality     Discipline = "quality"
	DisciplineEnvironment Discipline = "environment"
	DisciplineGeneral     Discipline = "general"
)

var knownDisciplines = map[Discipline]struct{}{
	DisciplineCommercial:  {},
	DisciplineTechnical:   {},
	DisciplineLegal:       {},
	DisciplineFinancial:   {},
	DisciplineSafety:      {},
	DisciplineSchedule:    {},
	DisciplineQuality:     {},
	DisciplineEnvironment: {},
	DisciplineGeneral:     {},
}

func (d Discipline) Valid() bool {
	_, ok := knownDisciplines[d]
	return ok
}

type Question struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"projectId"`
	Provider   string         `json:"provider"`
	Discipline Discipline     `json:"discipline"`
	Text       string         `json:"text"`
	Status     QuestionStatus `json:"status"`
	Importance Importance     `json:"importance"`
	Response   string         `json:"response,omitempty"`
	ResponseAt *time.Time     `json:"responseAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// EligibleForBundling reports whether the question may be included in an
// outgoing draft to its provider.
func (q Question) EligibleForBundling() bool {
	return q.Status == QuestionApproved
}

func (q Question) Validate() error {
	if strings.TrimSpace(q.ProjectID) == "" {
		return fieldError("question", "projectId")
	}
	if strings.TrimSpace(q.Provider) == "" {
		return fieldError("question", "provider")
	}
	if strings.TrimSpace(q.Text) == "" {
		return fieldError("question", "text")
	}
	if !q.Discipline.Valid() {
		return fieldError("question", "discipline")
	}
	if !q.Status.Valid() {
		return fieldError("question", "status")
	}
	if !q.Importance.Valid() {
		return fieldError("question", "importance")
	}
	return nil
}
