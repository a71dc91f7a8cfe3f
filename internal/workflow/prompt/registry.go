package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptWorkPlanV1            PromptID = "work_plan_v1"
	PromptChapterIntroV1        PromptID = "chapter_intro_v1"
	PromptChapterConclusionV1   PromptID = "chapter_conclusion_v1"
	PromptChapterBibliographyV1 PromptID = "chapter_bibliography_v1"
	PromptChapterGenericV1      PromptID = "chapter_generic_v1"
	PromptSubsectionTitlesV1    PromptID = "subsection_titles_v1"
	PromptSubsectionV1          PromptID = "subsection_v1"
	PromptSimpleWorkV1          PromptID = "simple_work_v1"
	PromptSimpleBibliographyV1  PromptID = "simple_bibliography_v1"
	PromptLegacyFullWorkV1      PromptID = "legacy_full_work_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// ChatTemplate 返回指定 id 的模板。
// 模板只含 user 消息：system 指令由会话持有，每个订单只注入一次。
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	userPath, err := resolvePromptFile(id)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染并返回单条 user 消息。
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) (*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	if len(msgs) != 1 {
		return nil, fmt.Errorf("prompt %s: expected single message, got %d", id, len(msgs))
	}
	return msgs[0], nil
}

// SystemPrompt 返回所有生成会话共用的 system 指令。
func SystemPrompt() (string, error) {
	return readEmbeddedText("templates/assistant_system_v1.txt")
}

func resolvePromptFile(id PromptID) (string, error) {
	switch id {
	case PromptWorkPlanV1:
		return "templates/work_plan_v1.user.txt", nil
	case PromptChapterIntroV1:
		return "templates/chapter_intro_v1.user.txt", nil
	case PromptChapterConclusionV1:
		return "templates/chapter_conclusion_v1.user.txt", nil
	case PromptChapterBibliographyV1:
		return "templates/chapter_bibliography_v1.user.txt", nil
	case PromptChapterGenericV1:
		return "templates/chapter_generic_v1.user.txt", nil
	case PromptSubsectionTitlesV1:
		return "templates/subsection_titles_v1.user.txt", nil
	case PromptSubsectionV1:
		return "templates/subsection_v1.user.txt", nil
	case PromptSimpleWorkV1:
		return "templates/simple_work_v1.user.txt", nil
	case PromptSimpleBibliographyV1:
		return "templates/simple_bibliography_v1.user.txt", nil
	case PromptLegacyFullWorkV1:
		return "templates/legacy_full_work_v1.user.txt", nil
	default:
		return "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
