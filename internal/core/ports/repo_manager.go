package ports

import "github.com/zkachi/cranker/internal/core/domain"

type RepoManager interface {
	Rounds() domain.RoundRecordRepository
	Close()
}
