package model

import "time"

// Task is a unit of work delegated to a user until its due date.
type Task struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	AssigneeID  uint      `json:"assigneeId" gorm:"not null;index"`
	DueDate     time.Time `json:"dueDate" gorm:"not null;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Relations
	Assignee *User `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
}

