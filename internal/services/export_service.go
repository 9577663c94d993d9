package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/swad-platform/examprint-service/internal/repositories"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

var exportHeader = []string{
	"User ID", "Started At", "Ended At", "Sent",
	"Questions", "Answered", "Blank",
	"Correct", "Wrong (negative)", "Wrong (zero)", "Wrong (partial)",
	"Score", "Score (valid only)",
}

// ExportSessionResults renders every print of the session into one worksheet,
// one row per print, in the session's listing order.
func (s *exportService) ExportSessionResults(ctx context.Context, sessionID uint) ([]byte, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	prints, _, err := s.repo.Print().ListBySession(ctx, nil, sessionID, repositories.PrintFilters{
		SortBy:    "user_id",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prints: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	if err := f.SetCellValue(sheet, "A1", session.Title); err != nil {
		return nil, fmt.Errorf("failed to write title: %w", err)
	}
	for col, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, print := range prints {
		endedAt := ""
		if print.EndedAt != nil {
			endedAt = print.EndedAt.Format("2006-01-02 15:04:05")
		}
		values := []interface{}{
			print.UserID,
			print.StartedAt.Format("2006-01-02 15:04:05"),
			endedAt,
			print.Sent,
			print.NumQuestions,
			print.NumQuestionsNotBlank,
			print.NumBlank,
			print.NumCorrect,
			print.NumWrongNegative,
			print.NumWrongZero,
			print.NumWrongPositive,
			print.Score,
			print.ScoreValid,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+3)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}

	s.logger.Info("Exported session results",
		"session_id", sessionID,
		"prints", len(prints))
	return buf.Bytes(), nil
}
