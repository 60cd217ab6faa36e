package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var instanceFields = []string{"book_id", "imprint", "due_back", "borrower_id", "status"}

// InstanceFilter narrows ListBookInstances. Zero values disable a filter.
type InstanceFilter struct {
	Status     db.LoanStatus
	BookID     uint
	BorrowerID string
	Page       Page
}

// CreateBookInstance registers a copy of a book. A nil id is replaced by a
// fresh random UUID in the model's BeforeCreate hook.
func (r *CatalogRepository) CreateBookInstance(ctx context.Context, instance *db.BookInstance) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resolveInstanceBook(tx, instance); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(instance).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrBookInstanceAlreadyExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			r.log.Error("Failed to create book instance", zap.Error(err))
		}
		return err
	}

	r.log.Info("Book instance created",
		zap.String("id", instance.ID.String()),
		zap.String("status", instance.Status.Name()),
	)
	return nil
}

// GetBookInstance retrieves a book instance by id with its book
func (r *CatalogRepository) GetBookInstance(ctx context.Context, id uuid.UUID) (*db.BookInstance, error) {
	var instance db.BookInstance
	err := r.db.WithContext(ctx).Preload("Book").Where("id = ?", id).First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookInstanceNotFound
		}
		r.log.Error("Failed to get book instance", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}

	return &instance, nil
}

// ListBookInstances returns a page of instances ordered by due-back date
func (r *CatalogRepository) ListBookInstances(ctx context.Context, filter InstanceFilter) ([]*db.BookInstance, int64, error) {
	page := filter.Page.normalize()
	query := r.db.WithContext(ctx).Model(&db.BookInstance{})

	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.BookID != 0 {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.BorrowerID != "" {
		query = query.Where("borrower_id = ?", filter.BorrowerID)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count book instances", zap.Error(err))
		return nil, 0, err
	}

	var instances []*db.BookInstance
	if err := query.Preload("Book").
		Offset(page.offset()).
		Limit(page.Size).
		Order("due_back").
		Order("id").
		Find(&instances).Error; err != nil {
		r.log.Error("Failed to list book instances", zap.Error(err))
		return nil, 0, err
	}

	return instances, total, nil
}

// UpdateBookInstance applies the fields named in updateMask (all fields when
// empty) and returns the fields that changed. The id itself never changes.
func (r *CatalogRepository) UpdateBookInstance(ctx context.Context, instance *db.BookInstance, updateMask []string) ([]string, error) {
	var fieldsChanged []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.BookInstance
		if err := tx.Where("id = ?", instance.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookInstanceNotFound
			}
			return err
		}

		fieldsChanged = getChangedInstanceFields(&existing, instance, updateMask)
		if len(fieldsChanged) == 0 {
			return nil
		}

		for _, field := range fieldsChanged {
			switch field {
			case "book_id":
				existing.BookID = instance.BookID
			case "imprint":
				existing.Imprint = instance.Imprint
			case "due_back":
				existing.DueBack = instance.DueBack
			case "borrower_id":
				existing.BorrowerID = instance.BorrowerID
			case "status":
				existing.Status = instance.Status
			}
		}

		if err := resolveInstanceBook(tx, &existing); err != nil {
			return err
		}

		return tx.Omit(clause.Associations).Save(&existing).Error
	})
	if err != nil {
		if !isClientError(err) {
			r.log.Error("Failed to update book instance", zap.String("id", instance.ID.String()), zap.Error(err))
		}
		return nil, err
	}

	if len(fieldsChanged) > 0 {
		r.log.Info("Book instance updated",
			zap.String("id", instance.ID.String()),
			zap.Strings("fields_changed", fieldsChanged),
		)
	}
	return fieldsChanged, nil
}

// DeleteBookInstance removes a book instance
func (r *CatalogRepository) DeleteBookInstance(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.BookInstance{})
	if result.Error != nil {
		r.log.Error("Failed to delete book instance", zap.String("id", id.String()), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookInstanceNotFound
	}

	r.log.Info("Book instance deleted", zap.String("id", id.String()))
	return nil
}

// ReleaseBorrower clears the borrower on every instance held by a user that
// no longer exists. Status and due date are left untouched.
func (r *CatalogRepository) ReleaseBorrower(ctx context.Context, borrowerID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&db.BookInstance{}).
		Where("borrower_id = ?", borrowerID).
		UpdateColumn("borrower_id", nil)
	if result.Error != nil {
		r.log.Error("Failed to release borrower", zap.String("borrower_id", borrowerID), zap.Error(result.Error))
		return 0, result.Error
	}

	r.log.Info("Borrower released",
		zap.String("borrower_id", borrowerID),
		zap.Int64("instances", result.RowsAffected),
	)
	return result.RowsAffected, nil
}

func resolveInstanceBook(tx *gorm.DB, instance *db.BookInstance) error {
	instance.Book = nil
	if instance.BookID == nil {
		return nil
	}

	var book db.Book
	if err := tx.First(&book, *instance.BookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		return err
	}
	instance.Book = &book
	return nil
}

func getChangedInstanceFields(old, new *db.BookInstance, updateMask []string) []string {
	var changed []string

	checkFields := updateMask
	if len(checkFields) == 0 {
		checkFields = instanceFields
	}

	for _, field := range checkFields {
		switch field {
		case "book_id":
			if !equalID(old.BookID, new.BookID) {
				changed = append(changed, "book_id")
			}
		case "imprint":
			if old.Imprint != new.Imprint {
				changed = append(changed, "imprint")
			}
		case "due_back":
			if db.FormatDate(old.DueBack) != db.FormatDate(new.DueBack) {
				changed = append(changed, "due_back")
			}
		case "borrower_id":
			if !equalString(old.BorrowerID, new.BorrowerID) {
				changed = append(changed, "borrower_id")
			}
		case "status":
			if old.Status != new.Status {
				changed = append(changed, "status")
			}
		}
	}

	return changed
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
