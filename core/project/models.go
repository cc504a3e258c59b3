package project

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Status is the progress of a sequence through the storyboard workflow.
type Status string

const (
	StatusStoryboard            Status = "storyboard"
	StatusStoryboardValidating  Status = "storyboard-validating"
	StatusPreMounting           Status = "pre-mounting"
	StatusPreMountingValidating Status = "pre-mounting-validating"
	StatusValidated             Status = "validated"
)

var Statuses = []Status{
	StatusStoryboard,
	StatusStoryboardValidating,
	StatusPreMounting,
	StatusPreMountingValidating,
	StatusValidated,
}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsValidating reports whether the status asks the teacher for a validation.
func (s Status) IsValidating() bool {
	return s == StatusStoryboardValidating || s == StatusPreMountingValidating
}

type (
	// Title is a text card shown before the plans of a sequence.
	// X, Y, Width and FontSize are percentages of the frame.
	Title struct {
		Text            string  `json:"text"`
		Duration        int     `json:"duration" validate:"min=0"`
		X               float64 `json:"x" validate:"min=0,max=100"`
		Y               float64 `json:"y" validate:"min=0,max=100"`
		Width           float64 `json:"width" validate:"min=0,max=100"`
		FontSize        float64 `json:"fontSize" validate:"min=0,max=100"`
		FontFamily      string  `json:"fontFamily"`
		Color           string  `json:"color" validate:"omitempty,hexcolor"`
		BackgroundColor string  `json:"backgroundColor" validate:"omitempty,hexcolor"`
		TextAlign       string  `json:"textAlign" validate:"omitempty,textalign"`
	}

	// Plan is one shot of a sequence. Duration is in milliseconds.
	Plan struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
		ImageURL    string `json:"imageUrl"`
		Duration    int    `json:"duration" validate:"min=0"`
	}

	// Sequence answers one question of the project.
	Sequence struct {
		ID                int      `json:"id"`
		Question          string   `json:"question"`
		Plans             []Plan   `json:"plans" validate:"dive"`
		Title             *Title   `json:"title,omitempty"`
		VoiceText         string   `json:"voiceText,omitempty"`
		SoundURL          string   `json:"soundUrl,omitempty"`
		SoundVolume       null.Int `json:"soundVolume" validate:"omitempty,min=0,max=200"`
		VoiceOffBeginTime null.Int `json:"voiceOffBeginTime"`
		Status            Status   `json:"status,omitempty" validate:"omitempty,status"`
		Feedbacks         []string `json:"feedbacks,omitempty"`
	}

	// Data is the JSON document stored alongside a project row.
	Data struct {
		ThemeID        null.Int   `json:"themeId"`
		ThemeName      string     `json:"themeName"`
		ScenarioID     null.Int   `json:"scenarioId"`
		ScenarioName   string     `json:"scenarioName"`
		Sequences      []Sequence `json:"questions"`
		SoundURL       string     `json:"soundUrl,omitempty"`
		SoundVolume    null.Int   `json:"soundVolume"`
		SoundBeginTime int        `json:"soundBeginTime"`
	}

	Project struct {
		ID                         int       `json:"id"`
		UserID                     int       `json:"userId"`
		OwnerEmail                 string    `json:"-"`
		Name                       string    `json:"name"`
		Language                   string    `json:"language"`
		Data                       Data      `json:"data"`
		CollaborationCode          string    `json:"collaborationCode,omitempty"`
		CollaborationCodeExpiresAt null.Time `json:"collaborationCodeExpiresAt"`
		VideoJobID                 string    `json:"videoJobId,omitempty"`
		CreatedAt                  time.Time `json:"createDate"`
		UpdatedAt                  time.Time `json:"updateDate"`
	}
)

// SequenceIndex returns the index of the sequence with the given ID, or -1.
func (p Project) SequenceIndex(id int) int {
	for i, seq := range p.Data.Sequences {
		if seq.ID == id {
			return i
		}
	}
	return -1
}

// PlanIndex returns the index of the plan with the given ID, or -1.
func (seq Sequence) PlanIndex(id int) int {
	for i, pl := range seq.Plans {
		if pl.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the sequence.
func (seq Sequence) Clone() Sequence {
	cl := seq
	if seq.Plans != nil {
		cl.Plans = append([]Plan(nil), seq.Plans...)
	}
	if seq.Title != nil {
		t := *seq.Title
		cl.Title = &t
	}
	if seq.Feedbacks != nil {
		cl.Feedbacks = append([]string(nil), seq.Feedbacks...)
	}
	return cl
}

// Actor is the caller of a service operation.
// Students are scoped to one project and one sequence.
type Actor struct {
	UserID     int
	Email      string
	Student    bool
	ProjectID  int
	SequenceID int
}

// CanEdit reports whether the actor may modify the given sequence of the project.
func (a Actor) CanEdit(p Project, seqID int) bool {
	if a.Student {
		return a.ProjectID == p.ID && a.SequenceID == seqID
	}
	return a.UserID == p.UserID
}

type (
	NewProject struct {
		Name         string     `json:"name" validate:"required,max=200"`
		Language     string     `json:"language" validate:"omitempty,len=2,alpha"`
		ThemeID      null.Int   `json:"themeId"`
		ThemeName    string     `json:"themeName" validate:"max=200"`
		ScenarioID   null.Int   `json:"scenarioId"`
		ScenarioName string     `json:"scenarioName" validate:"max=200"`
		Sequences    []Sequence `json:"questions" validate:"dive"`
	}

	UpdateProject struct {
		Name           *string   `json:"name" validate:"omitempty,min=1,max=200"`
		Language       *string   `json:"language" validate:"omitempty,len=2,alpha"`
		SoundURL       *string   `json:"soundUrl"`
		SoundVolume    *null.Int `json:"soundVolume" validate:"omitempty,min=0,max=200"`
		SoundBeginTime *int      `json:"soundBeginTime" validate:"omitempty,min=0"`
	}

	UpdateSequence struct {
		Question          *string   `json:"question"`
		Title             *Title    `json:"title"`
		RemoveTitle       bool      `json:"removeTitle"`
		VoiceText         *string   `json:"voiceText"`
		SoundURL          *string   `json:"soundUrl"`
		SoundVolume       *null.Int `json:"soundVolume" validate:"omitempty,min=0,max=200"`
		VoiceOffBeginTime *null.Int `json:"voiceOffBeginTime"`
	}

	NewSequence struct {
		Question string `json:"question" validate:"required,max=500"`
		Title    *Title `json:"title"`
		Plans    []Plan `json:"plans" validate:"dive"`
	}

	NewPlan struct {
		Description string `json:"description"`
		ImageURL    string `json:"imageUrl"`
		Duration    int    `json:"duration" validate:"min=0"`
	}

	UpdatePlan struct {
		Description *string `json:"description"`
		ImageURL    *string `json:"imageUrl"`
		Duration    *int    `json:"duration" validate:"omitempty,min=0"`
	}

	StatusChange struct {
		Status   Status `json:"status" validate:"required,status"`
		Feedback string `json:"feedback" validate:"max=2000"`
	}

	QueryFilter struct {
		UserID int
		Search string // case-insensitive match on the name
	}
)
