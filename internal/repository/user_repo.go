package repository

import (
	"telehealth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(u *models.User) error {
	return r.db.Create(u).Error
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var u models.User
	err := r.db.First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByIDForUpdate locks the user row. Starting a session locks the doctor here so
// concurrent starts against one doctor run one after another.
func (r *UserRepository) GetByIDForUpdate(id uint) (*models.User, error) {
	var u models.User
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetOnline(id uint, online bool) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("is_online", online).Error
}
