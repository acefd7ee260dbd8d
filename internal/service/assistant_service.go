package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/accompli/iep-api/internal/models"
	"github.com/accompli/iep-api/pkg/config"
	appErrors "github.com/accompli/iep-api/pkg/errors"
)

const assistantFallback = "The drafting assistant is unavailable right now. " +
	"Consider reviewing the student's present levels, recent data points and " +
	"behavior log, then draft the goal manually using the SMART criteria."

type assistantStudentSource interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type assistantIEPSource interface {
	FindActiveByStudent(ctx context.Context, studentID string) (*models.IEP, error)
}

type assistantGoalSource interface {
	List(ctx context.Context, filter models.GoalFilter) ([]models.Goal, int, error)
	ListPointsForGoals(ctx context.Context, goalIDs []string) (map[string][]models.ProgressDataPoint, error)
}

type assistantBehaviorSource interface {
	Summary(ctx context.Context, studentID string, from, to time.Time) (*models.BehaviorSummary, error)
}

// AssistantRequest asks for a drafting suggestion for one student.
type AssistantRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	Area      models.GoalArea `json:"area" validate:"required"`
	Prompt    string          `json:"prompt"`
}

// AssistantResponse carries the suggestion text. Fallback is set when the
// upstream model could not be reached and a canned answer was returned.
type AssistantResponse struct {
	Suggestion  string    `json:"suggestion"`
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generated_at"`
}

type assistantChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type assistantChatRequest struct {
	Model       string                 `json:"model"`
	Messages    []assistantChatMessage `json:"messages"`
	Temperature float64                `json:"temperature,omitempty"`
}

type assistantChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AssistantService suggests goal drafts by sending caseload context to an
// OpenAI-compatible chat-completions endpoint. Upstream failures never
// surface to the caller; the service degrades to a canned fallback.
type AssistantService struct {
	students   assistantStudentSource
	ieps       assistantIEPSource
	goals      assistantGoalSource
	behavior   assistantBehaviorSource
	httpClient *http.Client
	logger     *zap.Logger
	cfg        config.AssistantConfig
}

// NewAssistantService constructs the assistant service.
func NewAssistantService(
	students assistantStudentSource,
	ieps assistantIEPSource,
	goals assistantGoalSource,
	behavior assistantBehaviorSource,
	logger *zap.Logger,
	cfg config.AssistantConfig,
) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &AssistantService{
		students:   students,
		ieps:       ieps,
		goals:      goals,
		behavior:   behavior,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		cfg:        cfg,
	}
}

// SuggestGoal builds a context block from the student's record and asks the
// upstream model for a goal draft.
func (s *AssistantService) SuggestGoal(ctx context.Context, req AssistantRequest) (*AssistantResponse, error) {
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if !req.Area.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown goal area %q", req.Area))
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	contextBlock := s.buildContext(ctx, student, req.Area)

	if !s.cfg.Enabled {
		return s.fallback(), nil
	}
	suggestion, err := s.complete(ctx, contextBlock, req)
	if err != nil {
		s.logger.Warn("assistant completion failed, returning fallback",
			zap.String("student_id", req.StudentID), zap.Error(err))
		return s.fallback(), nil
	}
	return &AssistantResponse{Suggestion: suggestion, GeneratedAt: time.Now().UTC()}, nil
}

func (s *AssistantService) fallback() *AssistantResponse {
	return &AssistantResponse{
		Suggestion:  assistantFallback,
		Fallback:    true,
		GeneratedAt: time.Now().UTC(),
	}
}

// buildContext assembles what the record shows about the student. Every
// lookup is best effort; missing pieces shrink the context, never abort it.
func (s *AssistantService) buildContext(ctx context.Context, student *models.StudentDetail, area models.GoalArea) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student: grade %s, disability category %s.\n", student.GradeLevel, student.DisabilityCategory)

	if iep, err := s.ieps.FindActiveByStudent(ctx, student.ID); err == nil {
		if levels := strings.TrimSpace(iep.PresentLevels); levels != "" {
			fmt.Fprintf(&b, "Present levels: %s\n", levels)
		}
		if len(iep.Accommodations) > 0 {
			fmt.Fprintf(&b, "Accommodations: %s\n", strings.Join(iep.Accommodations, "; "))
		}
	}

	goals, _, err := s.goals.List(ctx, models.GoalFilter{
		StudentID: student.ID,
		Area:      string(area),
		PageSize:  10,
	})
	if err == nil && len(goals) > 0 {
		ids := make([]string, 0, len(goals))
		for _, g := range goals {
			ids = append(ids, g.ID)
		}
		points, _ := s.goals.ListPointsForGoals(ctx, ids)
		fmt.Fprintf(&b, "Existing %s goals:\n", area)
		for _, g := range goals {
			fmt.Fprintf(&b, "- %s (target %.0f, progress %d%%, status %s)\n",
				g.Statement, g.Target, g.CurrentProgress, g.Status)
			if pts := points[g.ID]; len(pts) > 0 {
				last := pts[len(pts)-1]
				fmt.Fprintf(&b, "  last data point %.1f on %s\n",
					last.Value, last.CollectionDate.Format("2006-01-02"))
			}
		}
	}

	if area == models.AreaBehavioral {
		to := time.Now().UTC()
		from := to.AddDate(0, -1, 0)
		if summary, err := s.behavior.Summary(ctx, student.ID, from, to); err == nil && summary.TotalEvents > 0 {
			fmt.Fprintf(&b, "Behavior, last 30 days: %d events", summary.TotalEvents)
			if len(summary.TopAntecedents) > 0 {
				fmt.Fprintf(&b, ", most common antecedent %q", summary.TopAntecedents[0].Value)
			}
			b.WriteString(".\n")
		}
	}
	return b.String()
}

func (s *AssistantService) complete(ctx context.Context, contextBlock string, req AssistantRequest) (string, error) {
	system := "You help special-education teachers draft measurable annual IEP goals. " +
		"Suggest one SMART goal with a baseline, target criteria and measurement method. " +
		"Never include the student's name or other identifying details."
	user := fmt.Sprintf("Goal area: %s.\n%s", req.Area, contextBlock)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		user += "\nTeacher notes: " + p
	}

	body := assistantChatRequest{
		Model: s.cfg.Model,
		Messages: []assistantChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.4,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(raw))
	}
	var parsed assistantChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	for _, c := range parsed.Choices {
		if text := strings.TrimSpace(c.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", errors.New("empty upstream completion")
}
