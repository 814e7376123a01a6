package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Ask routes a question according to the user's state.
func (r *Router) Ask(ctx context.Context, userID, question string) models.Outcome {
	unlock := r.lockUser(userID)
	defer unlock()

	switch r.state(userID) {
	case models.StateNoDocuments:
		return models.Outcome{Kind: models.OutcomePromptUpload, State: models.StateNoDocuments}
	case models.StateDocumentSelectable:
		return r.promptSelection(userID)
	}

	s := r.deps.Sessions.GetOrCreate(userID)
	doc, err := r.deps.Registry.Get(s.ActiveDocumentID)
	if err != nil || doc.OwnerID != userID {
		r.logger.Warn("active document no longer available; clearing session",
			zap.String("user_id", userID),
			zap.String("document_id", s.ActiveDocumentID),
		)
		r.deps.Sessions.Clear(userID)
		if r.state(userID) == models.StateNoDocuments {
			return models.Outcome{Kind: models.OutcomePromptUpload, State: models.StateNoDocuments}
		}
		return r.promptSelection(userID)
	}

	inChat := models.Outcome{State: models.StateInChat, ActiveDocumentID: doc.ID}
	passages, err := r.deps.Index.Query(ctx, question, userID, doc.ID, r.topK)
	if err != nil {
		r.logger.Error("retrieval failed", zap.String("user_id", userID), zap.String("document_id", doc.ID), zap.Error(err))
		inChat.Kind, inChat.Err = models.OutcomeError, err
		return inChat
	}
	if len(passages) == 0 {
		r.logger.Info("no relevant chunks", zap.String("user_id", userID), zap.String("document_id", doc.ID))
		inChat.Kind = models.OutcomeNoMatch
		return inChat
	}
	text, err := r.deps.Answerer.Answer(ctx, question, passages)
	if err != nil {
		r.logger.Error("answer generation failed", zap.String("user_id", userID), zap.Error(err))
		inChat.Kind, inChat.Err = models.OutcomeError, err
		return inChat
	}
	r.logger.Info("question answered",
		zap.String("user_id", userID),
		zap.String("document_id", doc.ID),
		zap.Int("passages", len(passages)),
	)
	inChat.Kind, inChat.Text = models.OutcomeAnswer, text
	return inChat
}

func (r *Router) promptSelection(userID string) models.Outcome {
	return models.Outcome{
		Kind:      models.OutcomePromptSelection,
		State:     models.StateDocumentSelectable,
		Documents: r.deps.Registry.ListForOwner(userID),
	}
}

// Select makes docID the user's active document and enters chat mode.
// Unknown or foreign documents leave the session unchanged.
func (r *Router) Select(ctx context.Context, userID, docID string) (models.State, error) {
	unlock := r.lockUser(userID)
	defer unlock()
	if err := r.deps.Sessions.SetActiveDocument(userID, docID); err != nil {
		return r.state(userID), err
	}
	r.logger.Info("document selected", zap.String("user_id", userID), zap.String("document_id", docID))
	return models.StateInChat, nil
}

// Finish leaves chat mode. It is a no-op outside InChat.
func (r *Router) Finish(ctx context.Context, userID string) models.State {
	unlock := r.lockUser(userID)
	defer unlock()
	if r.state(userID) == models.StateInChat {
		r.deps.Sessions.Clear(userID)
		r.logger.Info("chat finished", zap.String("user_id", userID))
	}
	return r.state(userID)
}
