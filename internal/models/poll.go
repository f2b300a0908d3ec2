package models

import "time"

// Poll is registry metadata for a timed poll. Duration is in hours.
type Poll struct {
	ID          string     `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	Name        string     `json:"name" gorm:"column:name;not null"`
	Description string     `json:"description,omitempty" gorm:"column:description;type:text"`
	StartDate   time.Time  `json:"startDate" gorm:"column:start_date"`
	EndDate     *time.Time `json:"endDate,omitempty" gorm:"column:end_date"`
	IsActive    bool       `json:"isActive" gorm:"column:is_active;default:true"`
	Duration    *int       `json:"duration,omitempty" gorm:"column:duration"`
	CreatedAt   time.Time  `json:"-" gorm:"column:created_at"`
	UpdatedAt   time.Time  `json:"-" gorm:"column:updated_at"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:PollID"`
}

func (Poll) TableName() string {
	return "polls"
}

// AcceptingVotes reports whether the poll takes votes at now: it must be
// flagged active and now must fall in [StartDate, EndDate).
func (p Poll) AcceptingVotes(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if p.EndDate != nil && !now.Before(*p.EndDate) {
		return false
	}
	return true
}

type Participant struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	ImageURL  string    `json:"imageUrl,omitempty" gorm:"column:image_url"`
	PollID    string    `json:"pollId" gorm:"column:poll_id;type:uuid;not null;index"`
	CreatedAt time.Time `json:"-" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"-" gorm:"column:updated_at"`
}

func (Participant) TableName() string {
	return "participants"
}
