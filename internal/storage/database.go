package storage

import (
	"fmt"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/inverter"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// How long archived rows are kept before Prune discards them.
const retention = 30 * 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Reading{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

// SaveSample archives one successful poll.
func (d *Database) SaveSample(sample *inverter.Sample, energyTodayWh float64, night bool) error {
	reading := &Reading{
		Timestamp:        sample.Timestamp,
		ACVoltage:        sample.ACVoltage,
		GridFreqHz:       sample.GridFreqHz,
		InverterTempC:    sample.TempC,
		PowerW:           sample.PowerW,
		EnergyTodayWh:    energyTodayWh,
		EnergyLifetimeWh: sample.EnergyLifetimeWh,
		StatusCode:       sample.StatusCode,
		Night:            night,
	}
	return d.db.Create(reading).Error
}

func (d *Database) GetLatestReading() (*Reading, error) {
	var reading Reading
	result := d.db.Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(from, to time.Time) ([]Reading, error) {
	var readings []Reading
	result := d.db.Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(limit int) ([]Reading, error) {
	var readings []Reading
	result := d.db.Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetDailyStats(date time.Time) (*DailyStats, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var stats DailyStats
	stats.Date = startOfDay

	var reading Reading
	result := d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("power_w desc").
		First(&reading)
	if result.Error == nil {
		stats.MaxPowerW = reading.PowerW
	}

	result = d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("timestamp desc").
		First(&reading)
	if result.Error == nil {
		stats.EnergyKWh = reading.EnergyTodayWh / 1000
	}

	var avgTemp float64
	d.db.Model(&Reading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Select("AVG(inverter_temp_c)").
		Scan(&avgTemp)
	stats.AvgTempC = avgTemp

	d.db.Model(&Reading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Count(&stats.ReadingsCount)

	return &stats, nil
}

// Prune drops rows older than the retention window.
func (d *Database) Prune() error {
	cutoff := time.Now().Add(-retention)
	return d.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&Reading{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
