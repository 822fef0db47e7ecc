package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

// ArkBackend runs an eino chain (prompt template -> chat model).
type ArkBackend struct {
	system string
	chain  compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackendFromConfig builds the Ark chat model described by cfg.
func NewArkBackendFromConfig(ctx context.Context, cfg config.AIConfig, tmpl PromptTemplate) (*ArkBackend, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewArkBackend(ctx, chatModel, tmpl)
}

// NewArkBackend compiles the chain around chatModel.
func NewArkBackend(ctx context.Context, chatModel model.BaseChatModel, tmpl PromptTemplate) (*ArkBackend, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkBackend{
		system: tmpl.System(),
		chain:  runnable,
	}, nil
}

func (b *ArkBackend) Name() string { return config.ProviderArk }

// Generate invokes the chain once.
func (b *ArkBackend) Generate(ctx context.Context, history []chat.ContextMessage, message string) (string, error) {
	input := map[string]any{
		"system":  b.system,
		"history": toSchemaMessages(history),
		"query":   message,
	}

	response, err := b.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", retry.Transient(ErrEmptyReply)
	}
	return response.Content, nil
}

func toSchemaMessages(history []chat.ContextMessage) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.ContextRoleUser:
			messages = append(messages, schema.UserMessage(msg.Text))
		case chat.ContextRoleModel:
			messages = append(messages, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return messages
}
