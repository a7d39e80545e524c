package inmemdb

import (
	"context"
	"sort"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(_ context.Context, schema core.Schema, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return user.User{}, err
	}
	for _, u := range tbls.users {
		if u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}

	usr.ID = repo.db.nextPK()
	tbls.users[usr.ID] = &usr
	tbls.profiles[usr.ID] = &user.Profile{UserID: usr.ID}
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, schema core.Schema, id int64) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return user.User{}, err
	}
	if usr, ok := tbls.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, schema core.Schema, username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return user.User{}, err
	}
	for _, usr := range tbls.users {
		if usr.Username == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, schema core.Schema, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return nil, err
	}

	var ids map[int64]bool
	if filter != nil && len(filter.IDs) > 0 {
		ids = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	users := make([]user.User, 0)
	for _, usr := range tbls.users {
		if filter != nil {
			if ids != nil && !ids[usr.ID] {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			if filter.IsStaff != nil && usr.IsStaff != *filter.IsStaff {
				continue
			}
			if filter.GetNotificationsByEmail != nil {
				p, ok := tbls.profiles[usr.ID]
				if !ok || p.GetNotificationsByEmail != *filter.GetNotificationsByEmail {
					continue
				}
			}
			if filter.HasUnreadNotifications && !tbls.hasUnread(usr.ID) {
				continue
			}
		}
		users = append(users, *usr)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return less(ordering, func(field string) int {
			switch field {
			case "created_at":
				return compareTime(users[i].CreatedAt, users[j].CreatedAt)
			case "username":
				return compareString(users[i].Username, users[j].Username)
			default:
				return compareInt(users[i].ID, users[j].ID)
			}
		})
	})
	return users, nil
}

func (tbls *schemaTables) hasUnread(userID int64) bool {
	for _, n := range tbls.notifications {
		if n.RecipientID == userID && n.Unread {
			return true
		}
	}
	return false
}

func (repo *userRepository) GetProfile(_ context.Context, schema core.Schema, userID int64) (user.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return user.Profile{}, err
	}
	if p, ok := tbls.profiles[userID]; ok {
		return *p, nil
	}
	return user.Profile{}, user.ErrNotFound
}

func (repo *userRepository) UpdateProfile(_ context.Context, schema core.Schema, p user.Profile) (user.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tbls, err := repo.db.tables(schema)
	if err != nil {
		return user.Profile{}, err
	}
	if _, ok := tbls.profiles[p.UserID]; !ok {
		return user.Profile{}, user.ErrNotFound
	}
	tbls.profiles[p.UserID] = &p
	return p, nil
}
