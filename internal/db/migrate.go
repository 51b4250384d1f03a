package db

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"usertasks/internal/model"
)

// Migrate creates or updates the schema. When reset is true the tables are
// dropped first.
func Migrate(gormDB *gorm.DB, reset bool) error {
	if reset {
		log.Println("RESET_DB=true detected, dropping all tables...")
		for _, table := range []interface{}{&model.Task{}, &model.User{}} {
			if err := gormDB.Migrator().DropTable(table); err != nil {
				log.Printf("Warning: Failed to drop table (may not exist): %v", err)
			}
		}
	}

	if err := gormDB.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
