package server

import (
	"chaptergate/internal/domain"
)

// Request payloads

type KeywordCheckRequest struct {
	Keyword string `json:"keyword" minLength:"1" maxLength:"200"`
	Number  int    `json:"number" minimum:"1" maximum:"6"`
}

type PlaqueValidateRequest struct {
	PlaqueID string `json:"plaqueId" minLength:"1" maxLength:"64"`
	Provided string `json:"provided" minLength:"1" maxLength:"200"`
}

type StageAnswerRequest struct {
	Answer string `json:"answer" minLength:"1" maxLength:"200"`
}

type AdvanceActRequest struct {
	Outcome string `json:"outcome,omitempty" enum:"success,failure"`
}

type BanRequest struct {
	IP     string `json:"ip" minLength:"1" maxLength:"64"`
	Reason string `json:"reason,omitempty" maxLength:"200"`
}

type ChapterStatusRequest struct {
	Status string `json:"status" enum:"hidden,visible,archived"`
}

// Response payloads

type KeywordCheckResponse struct {
	Number int  `json:"number"`
	Match  bool `json:"match"`
}

type PlaqueValidateResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type PlaqueStatusResponse struct {
	Plaques map[string]string `json:"plaques"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ActsResponse struct {
	States map[domain.ActID]domain.ActState `json:"states"`
	Acts   []domain.Act                     `json:"acts"`
}

type ChaptersResponse struct {
	Chapters []domain.Chapter `json:"chapters"`
}

type EventsResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}
