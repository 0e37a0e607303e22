// Package contact is the user directory: search by name and a per-user
// contact list.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrSelfContact  = errors.New("cannot add yourself as a contact")
	ErrProfileTaken = errors.New("username or email already in use")
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type Contact struct {
	OwnerID   string `gorm:"type:varchar(26);primaryKey"`
	ContactID string `gorm:"type:varchar(26);primaryKey"`
	CreatedAt time.Time
}

func (Contact) TableName() string { return "contacts" }

// Profile is the public view of a user.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func toProfile(u models.User, _ int) Profile {
	return Profile{ID: u.ID, Username: u.Username}
}

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Get(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *Directory) Exists(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	var n int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

var likeWildcards = strings.NewReplacer("%", "", "_", "", `\`, "")

// Search finds users whose username contains q, never including callerID.
func (d *Directory) Search(ctx context.Context, callerID, q string, limit int) ([]Profile, error) {
	q = strings.TrimSpace(likeWildcards.Replace(q))
	if q == "" {
		return []Profile{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var users []models.User
	if err := d.db.WithContext(ctx).
		Where("username LIKE ? AND id <> ?", "%"+q+"%", callerID).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return lo.Map(users, toProfile), nil
}

// Add puts contactID on ownerID's list. Adding an existing contact is a no-op.
func (d *Directory) Add(ctx context.Context, ownerID, contactID string) (*Profile, error) {
	if ownerID == contactID {
		return nil, ErrSelfContact
	}
	u, err := d.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}

	c := Contact{OwnerID: ownerID, ContactID: contactID, CreatedAt: time.Now().UTC()}
	if err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&c).Error; err != nil {
		return nil, fmt.Errorf("add contact: %w", err)
	}
	p := toProfile(*u, 0)
	return &p, nil
}

// ProfileUpdate holds the fields to change. Empty fields are left as they are.
type ProfileUpdate struct {
	Username string
	Email    string
}

// UpdateProfile changes userID's username and email. Either one colliding with
// another user yields ErrProfileTaken.
func (d *Directory) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		changes := map[string]any{}
		if upd.Username != "" && upd.Username != u.Username {
			changes["username"] = upd.Username
		}
		if upd.Email != "" && upd.Email != u.Email {
			changes["email"] = upd.Email
		}
		if len(changes) == 0 {
			return nil
		}

		for col, v := range changes {
			var taken int64
			if err := tx.Model(&models.User{}).
				Where("id <> ? AND "+col+" = ?", userID, v).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return ErrProfileTaken
			}
		}

		// the unique indexes still catch a concurrent writer
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(changes).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrProfileTaken
			}
			return err
		}
		if v, ok := changes["username"]; ok {
			u.Username = v.(string)
		}
		if v, ok := changes["email"]; ok {
			u.Email = v.(string)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrProfileTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &u, nil
}

// List returns ownerID's contacts, oldest first.
func (d *Directory) List(ctx context.Context, ownerID string) ([]Profile, error) {
	var users []models.User
	if err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.*").
		Joins("JOIN contacts ON contacts.contact_id = users.id").
		Where("contacts.owner_id = ?", ownerID).
		Order("contacts.created_at ASC, users.id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return lo.Map(users, toProfile), nil
}
