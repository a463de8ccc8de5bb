package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"chaptergate/internal/cookie"
	"chaptergate/internal/domain"
	"chaptergate/internal/engine"
	"chaptergate/internal/gate"
)

func (h handlers) registerPlaques(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-plaque",
		Method:      http.MethodPost,
		Path:        "/plaques/validate",
		Summary:     "Check a plaque answer",
		Description: "A wrong answer is a normal 200 with ok=false. A correct answer also sets the signed auth cookie.",
		Errors:      []int{http.StatusBadRequest, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		Body PlaqueValidateRequest `json:"body"`
	}) (*struct {
		SetCookie string `header:"Set-Cookie"`
		Body      PlaqueValidateResponse
	}, error) {
		res, err := h.engine.SolvePlaque(strings.TrimSpace(input.Body.PlaqueID), input.Body.Provided, h.authToken(ctx))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		out := &struct {
			SetCookie string `header:"Set-Cookie"`
			Body      PlaqueValidateResponse
		}{Body: PlaqueValidateResponse{OK: res.OK, Message: res.Message}}
		if res.OK {
			c := h.engine.Config.Cookie
			out.SetCookie = cookie.Build(c.Name, res.Token, c.MaxAge, c.Secure || h.production).String()
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "plaque-status",
		Method:      http.MethodGet,
		Path:        "/plaques/status",
		Summary:     "Solved state of every plaque for this visitor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PlaqueStatusResponse
	}, error) {
		return &struct {
			Body PlaqueStatusResponse
		}{Body: PlaqueStatusResponse{Plaques: h.engine.PlaqueStatuses(h.authToken(ctx))}}, nil
	})
}

func (h handlers) registerKeywords(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "check-keyword",
		Method:      http.MethodPost,
		Path:        "/keywords/check",
		Summary:     "Probe one of the six numbered keywords",
		Errors:      []int{http.StatusBadRequest, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		Body KeywordCheckRequest `json:"body"`
	}) (*struct {
		Body KeywordCheckResponse
	}, error) {
		match := h.engine.CheckKeyword(input.Body.Number, input.Body.Keyword)
		return &struct {
			Body KeywordCheckResponse
		}{Body: KeywordCheckResponse{Number: input.Body.Number, Match: match}}, nil
	})
}

func (h handlers) registerPuzzles(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "check-stage",
		Method:      http.MethodPost,
		Path:        "/puzzles/{scope}/stages/{stage}",
		Summary:     "Check a staged puzzle answer",
		Errors:      []int{http.StatusBadRequest, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		Scope string `path:"scope" maxLength:"64"`
		Stage int    `path:"stage" minimum:"0"`
		Body  StageAnswerRequest
	}) (*struct {
		Body OKResponse
	}, error) {
		ok := h.engine.CheckStage(input.Scope, input.Stage, input.Body.Answer)
		return &struct {
			Body OKResponse
		}{Body: OKResponse{OK: ok}}, nil
	})
}

func (h handlers) registerActs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-acts",
		Method:      http.MethodGet,
		Path:        "/acts",
		Summary:     "State of every act",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActsResponse
	}, error) {
		acts, err := h.engine.Acts(ctx)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		states := make(map[domain.ActID]domain.ActState, len(acts))
		for _, a := range acts {
			states[a.ID] = a.State
		}
		return &struct {
			Body ActsResponse
		}{Body: ActsResponse{States: states, Acts: acts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-act",
		Method:      http.MethodGet,
		Path:        "/acts/{id}",
		Summary:     "State of one act",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" maxLength:"16"`
	}) (*struct {
		Body domain.Act
	}, error) {
		id, err := domain.ParseActID(input.ID)
		if err != nil {
			return nil, newAPIError(ctx, http.StatusNotFound, "not_found", "unknown act")
		}
		state, err := h.engine.ActState(ctx, id)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		act := domain.Act{
			ID:    id,
			Title: h.engine.Config.Acts[id].Title,
			State: state,
			Timed: h.engine.Config.TimedAct(id),
		}
		return &struct {
			Body domain.Act
		}{Body: act}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-act",
		Method:      http.MethodPost,
		Path:        "/admin/acts/{id}/advance",
		Summary:     "Advance an act along its transition table",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id" maxLength:"16"`
		Body AdvanceActRequest `required:"false"`
	}) (*struct {
		Body domain.Transition
	}, error) {
		outcome, err := engine.ParseOutcome(input.Body.Outcome)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		tr, err := h.engine.AdvanceAct(ctx, domain.ActID(input.ID), outcome, adminFromContext(ctx))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.Transition
		}{Body: tr}, nil
	})
}

func (h handlers) registerGate(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "gate",
		Method:      http.MethodGet,
		Path:        "/gate/{chapter}",
		Summary:     "Decide where a chapter request goes",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Chapter string `path:"chapter" maxLength:"64"`
	}) (*struct {
		Body gate.Decision
	}, error) {
		d, err := h.engine.Gate(ctx, gate.Request{Chapter: input.Chapter}, h.authToken(ctx))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body gate.Decision
		}{Body: d}, nil
	})
}

func (h handlers) registerChapters(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-chapters",
		Method:      http.MethodGet,
		Path:        "/chapters",
		Summary:     "Chapter statuses",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ChaptersResponse
	}, error) {
		chapters, err := h.engine.Chapters(ctx)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body ChaptersResponse
		}{Body: ChaptersResponse{Chapters: chapters}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-chapter-status",
		Method:      http.MethodPut,
		Path:        "/admin/chapters/{id}",
		Summary:     "Set a chapter status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id" maxLength:"16"`
		Body ChapterStatusRequest
	}) (*struct {
		Body domain.Chapter
	}, error) {
		ch, err := h.engine.SetChapterStatus(ctx, input.ID, input.Body.Status, adminFromContext(ctx))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.Chapter
		}{Body: ch}, nil
	})
}

func (h handlers) registerButtons(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "press-button",
		Method:      http.MethodPost,
		Path:        "/buttons/{name}/press",
		Summary:     "Increment a button counter",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" maxLength:"64"`
	}) (*struct {
		Body domain.ButtonCount
	}, error) {
		count, err := h.engine.PressButton(ctx, input.Name)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.ButtonCount
		}{Body: count}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-button",
		Method:      http.MethodGet,
		Path:        "/buttons/{name}",
		Summary:     "Read a button counter",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" maxLength:"64"`
	}) (*struct {
		Body domain.ButtonCount
	}, error) {
		count, err := h.engine.ButtonPresses(ctx, input.Name)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.ButtonCount
		}{Body: count}, nil
	})
}

func (h handlers) registerBans(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-bans",
		Method:      http.MethodGet,
		Path:        "/admin/bans",
		Summary:     "List banned addresses",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.BannedIP
	}, error) {
		bans, err := h.engine.Repo.ListBans(ctx)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body []domain.BannedIP
		}{Body: bans}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "ban-ip",
		Method:        http.MethodPost,
		Path:          "/admin/bans",
		Summary:       "Ban an address from the answer endpoints",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body BanRequest
	}) (*struct {
		Body domain.BannedIP
	}, error) {
		ban, err := h.engine.BanIP(ctx, input.Body.IP, input.Body.Reason, adminFromContext(ctx))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.BannedIP
		}{Body: ban}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unban-ip",
		Method:        http.MethodDelete,
		Path:          "/admin/bans/{ip}",
		Summary:       "Lift a ban",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		IP string `path:"ip" maxLength:"64"`
	}) (*struct{}, error) {
		if err := h.engine.UnbanIP(ctx, input.IP, adminFromContext(ctx)); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/admin/events",
		Summary:     "Events after a cursor",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		After int64 `query:"after" minimum:"0"`
		Limit int   `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body EventsResponse
	}, error) {
		items, err := h.engine.Repo.EventsAfter(ctx, input.After, input.Limit+1)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		resp := EventsResponse{Items: []domain.Event{}}
		if len(items) > input.Limit {
			items = items[:input.Limit]
			resp.NextCursor = items[len(items)-1].Seq
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body EventsResponse
		}{Body: resp}, nil
	})
}
