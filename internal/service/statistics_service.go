package service

import (
	"context"
	"time"

	"procurement/internal/model"

	"gorm.io/gorm"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

type DepartmentTotal struct {
	Department  string  `json:"department"`
	Count       int64   `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

type StatisticsResponse struct {
	TimeRangeStartDate time.Time         `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time         `json:"time_range_end_date"`
	ByStatus           []StatusCount     `json:"by_status"`
	ByKind             []KindCount       `json:"by_kind"`
	CreatedPerMonth    []MonthlyCount    `json:"created_per_month"`
	ClosedPerMonth     []MonthlyCount    `json:"closed_per_month"`
	TopDepartments     []DepartmentTotal `json:"top_departments"`
	PendingClosures    int64             `json:"pending_closures"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics aggregates the request dashboard: status and kind breakdowns,
// monthly created/closed series, and the departments driving the most spend.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error) {
	var response StatisticsResponse
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	inRange := func(q *gorm.DB) *gorm.DB {
		return q.Where("created_at >= ? AND created_at <= ?", startDate, endDate)
	}

	var byStatus []StatusCount
	inRange(s.db.WithContext(ctx).Model(&model.Request{})).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("count DESC").
		Scan(&byStatus)
	response.ByStatus = byStatus

	var byKind []KindCount
	inRange(s.db.WithContext(ctx).Model(&model.Request{})).
		Select("kind, COUNT(*) as count").
		Group("kind").
		Scan(&byKind)
	response.ByKind = byKind

	var created []MonthlyCount
	inRange(s.db.WithContext(ctx).Model(&model.Request{})).
		Select("to_char(created_at, 'YYYY-MM') as month, COUNT(*) as count").
		Group("month").
		Order("month ASC").
		Scan(&created)
	response.CreatedPerMonth = created

	var closed []MonthlyCount
	s.db.WithContext(ctx).Model(&model.Request{}).
		Select("to_char(updated_at, 'YYYY-MM') as month, COUNT(*) as count").
		Where("status = ? AND updated_at >= ? AND updated_at <= ?", model.StatusClosed, startDate, endDate).
		Group("month").
		Order("month ASC").
		Scan(&closed)
	response.ClosedPerMonth = closed

	var topDepartments []DepartmentTotal
	inRange(s.db.WithContext(ctx).Model(&model.Request{})).
		Select("department, COUNT(*) as count, SUM(total_amount) as total_amount").
		Group("department").
		Order("total_amount DESC").
		Limit(5).
		Scan(&topDepartments)
	response.TopDepartments = topDepartments

	s.db.WithContext(ctx).Model(&model.Request{}).
		Where("status = ?", model.StatusPendingClosure).
		Count(&response.PendingClosures)

	return response, nil
}
