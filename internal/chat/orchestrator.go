// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jeranaias/agrichat/internal/images"
	"github.com/jeranaias/agrichat/internal/model"
	"github.com/jeranaias/agrichat/internal/stream"
	"github.com/jeranaias/agrichat/internal/thread"
)

// ErrEmptyMessage indicates a send with neither text nor staged images.
var ErrEmptyMessage = errors.New("message has no text or images")

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator is the send-message façade: it builds the user message from
// text plus staged images, dispatches the backend request, drives the
// stream decoder, and finalizes the assistant message into the stores.
type Orchestrator struct {
	messages *MessageStore
	threads  *thread.Store
	staging  *images.StagingArea
	client   *Client

	userCtx model.UserContext

	// onTurnComplete fires on the streaming-to-idle transition, after the
	// assistant message has been appended and persisted.
	onTurnComplete func()
}

// NewOrchestrator wires the send path together.
func NewOrchestrator(messages *MessageStore, threads *thread.Store, staging *images.StagingArea, client *Client) *Orchestrator {
	return &Orchestrator{
		messages: messages,
		threads:  threads,
		staging:  staging,
		client:   client,
	}
}

// SetUserContext attaches profile fields to future outbound requests.
func (o *Orchestrator) SetUserContext(ctx model.UserContext) {
	o.userCtx = ctx
}

// SetOnTurnComplete registers the turn-completion hook.
func (o *Orchestrator) SetOnTurnComplete(fn func()) {
	o.onTurnComplete = fn
}

// Send runs one full turn. It returns an error only for input validation
// and the in-flight guard; transport and stream failures are absorbed into
// store state (a synthetic assistant message plus the error status) so the
// conversation is always left in a terminal, visible state.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	// Captured by value before the optimistic clear: a later Clear cannot
	// drop images from this request.
	staged := o.staging.Snapshot()

	if text == "" && len(staged) == 0 {
		return ErrEmptyMessage
	}

	if err := o.messages.BeginTurn(); err != nil {
		return err
	}

	// Staged images are single-use per turn, cleared before the network
	// call completes for UI responsiveness.
	o.staging.Clear()

	userMsg := buildUserMessage(text, staged)
	o.messages.Append(userMsg)
	threadID := o.currentThreadID()
	o.threads.UpdateMessages(threadID, o.messages.Messages())

	history := BuildHistory(o.messages.Messages())

	body, err := o.client.Send(ctx, history, o.userCtx)
	if err != nil {
		log.Printf("CHAT_SEND_FAILED | thread=%s error=%v", threadID, err)
		o.failTurn(threadID, err)
		return nil
	}
	defer body.Close()

	o.messages.MarkStreaming()

	acc := stream.NewAccumulator()
	streamErr := stream.Process(ctx, body, func(ev stream.Event) {
		acc.Apply(ev)
		o.messages.SetStreamingState(acc.State())
	})

	if streamErr != nil {
		log.Printf("CHAT_STREAM_ABORTED | thread=%s error=%v", threadID, streamErr)
		// Best-effort flush: whatever the fold accumulated before the
		// abort still becomes an assistant message.
		if acc.HasContent() {
			o.messages.Append(acc.Finalize())
		}
		o.messages.MarkError()
		o.threads.UpdateMessages(threadID, o.messages.Messages())
		return nil
	}

	o.messages.Append(acc.Finalize())
	o.messages.MarkIdle()
	o.threads.UpdateMessages(threadID, o.messages.Messages())

	if o.onTurnComplete != nil {
		o.onTurnComplete()
	}
	return nil
}

// SwitchThread loads another thread into the message store and clears any
// staged images. Disallowed while a turn is in flight so a stale stream
// can never write into the newly current thread.
func (o *Orchestrator) SwitchThread(threadID string) error {
	if st := o.messages.Status(); st == StatusSubmitted || st == StatusStreaming {
		return ErrTurnInFlight
	}

	th := o.threads.SwitchTo(threadID)
	if th == nil {
		return errors.New("unknown thread")
	}

	o.staging.Clear()
	o.messages.Load(th.Messages)
	return nil
}

// NewChat detaches into a fresh pending thread.
func (o *Orchestrator) NewChat() (string, error) {
	if st := o.messages.Status(); st == StatusSubmitted || st == StatusStreaming {
		return "", ErrTurnInFlight
	}

	id := o.threads.CreatePending()
	o.staging.Clear()
	o.messages.Load(nil)
	return id, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// currentThreadID resolves the target thread, lazily creating a pending
// ID when the user sends from a no-thread state.
func (o *Orchestrator) currentThreadID() string {
	if id, ok := o.threads.CurrentID(); ok {
		return id
	}
	return o.threads.CreatePending()
}

// failTurn records a failed request as a visible synthetic assistant
// message and leaves the turn in the error state.
func (o *Orchestrator) failTurn(threadID string, cause error) {
	errMsg := model.NewMessage(model.RoleAssistant, []model.Part{
		model.NewTextPart("Sorry, I could not reach the assistant: " + cause.Error()),
	})
	o.messages.Append(errMsg)
	o.messages.MarkError()
	o.threads.UpdateMessages(threadID, o.messages.Messages())
}

// buildUserMessage assembles the outgoing user message: one text part when
// text is present, one image part per staged attachment.
func buildUserMessage(text string, staged []model.ImageAttachment) model.Message {
	var parts []model.Part
	if text != "" {
		parts = append(parts, model.NewTextPart(text))
	}
	for _, att := range staged {
		parts = append(parts, model.NewImagePart(att))
	}
	return model.NewMessage(model.RoleUser, parts)
}
