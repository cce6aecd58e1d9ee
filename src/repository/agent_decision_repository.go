package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"perpagent/src/database"
	"perpagent/src/model"
)

// AgentDecisionRepository is append-only, grounded on the teacher's
// TransactionLog persistence idiom.
type AgentDecisionRepository struct {
	db *gorm.DB
}

func NewAgentDecisionRepository() *AgentDecisionRepository {
	return &AgentDecisionRepository{db: database.DB}
}

func (r *AgentDecisionRepository) WithDB(db *gorm.DB) *AgentDecisionRepository {
	return &AgentDecisionRepository{db: db}
}

func (r *AgentDecisionRepository) Create(ctx context.Context, d *model.AgentDecision) error {
	logger.WithFields(map[string]interface{}{
		"repo": "AgentDecisionRepository", "op": "Create", "iteration": d.Iteration,
	}).Info("persisting agent decision")
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *AgentDecisionRepository) FindRecent(ctx context.Context, limit int) ([]model.AgentDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.AgentDecision
	err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
