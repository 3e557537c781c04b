package models

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// User is a CRM operator (KAM, data team member, moderator or admin).
// Documents are keyed by email. Role is the custom claim carried into the
// session token; Platform scopes non-admin users to one tenant.
type User struct {
	Email    string   `firestore:"email" json:"email"`
	Name     string   `firestore:"name" json:"name"`
	Role     Role     `firestore:"role" json:"role"`
	Platform Platform `firestore:"platform" json:"platform"`
	Password string   `firestore:"password" json:"-"`
	IsActive bool     `firestore:"isActive" json:"isActive"`

	Added        int64 `firestore:"added" json:"added"`
	Lastmodified int64 `firestore:"lastmodified" json:"lastmodified"`
}

type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=kam dataTeam kamModerator admin"`
	Platform string `json:"platform" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserStore struct {
	Client *firestore.Client
}

func (s UserStore) col() *firestore.CollectionRef {
	return fsClient(s.Client).Collection(CollectionUsers)
}

func (s UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	snap, err := s.col().Doc(email).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var u User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s UserStore) Create(ctx context.Context, input NewUser) (*User, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	if !Platform(input.Platform).Valid() {
		return nil, errors.New("unknown platform")
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	u := User{
		Email:        input.Email,
		Name:         input.Name,
		Role:         Role(input.Role),
		Platform:     Platform(input.Platform),
		Password:     string(hashed),
		IsActive:     true,
		Added:        now,
		Lastmodified: now,
	}
	if _, err := s.col().Doc(u.Email).Create(ctx, &u); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, errors.New("user already exists")
		}
		return nil, err
	}
	return &u, nil
}

// SetRole reassigns the role claim. The cached user is invalidated so the
// next request resolves the new role.
func (s UserStore) SetRole(ctx context.Context, email string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, errors.New("unknown role")
	}
	_, err := s.col().Doc(email).Update(ctx, []firestore.Update{
		{Path: "role", Value: role},
		{Path: "lastmodified", Value: time.Now().UnixMilli()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	_ = config.RemoveRedisKey("User:" + email)
	return s.GetByEmail(ctx, email)
}

func (s UserStore) SetActive(ctx context.Context, email string, active bool) error {
	_, err := s.col().Doc(email).Update(ctx, []firestore.Update{
		{Path: "isActive", Value: active},
		{Path: "lastmodified", Value: time.Now().UnixMilli()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	return config.RemoveRedisKey("User:" + email)
}

// Login verifies credentials, issues a session token and caches it in Redis.
func (s UserStore) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return "", nil, err
	}
	user, err := s.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return "", nil, errors.New("invalid email or password")
		}
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, errors.New("user is disabled")
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return "", nil, errors.New("invalid email or password")
	}

	token, err := utils.JwtGenerate(user.Email, string(user.Role), string(user.Platform))
	if err != nil {
		return "", nil, err
	}

	lifespan := utils.TokenLifespan()
	if err := config.SetRedisValue("Token:"+token, user.Email, lifespan); err != nil {
		return "", nil, err
	}
	_ = config.SetRedisObject("User:"+user.Email, user, lifespan)
	return token, user, nil
}

// Logout destroys the current session.
func Logout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return errors.New("no active session")
	}
	email, _ := utils.GetUserEmailFromContext(ctx)
	keys := []string{"Token:" + token}
	if email != "" {
		keys = append(keys, "User:"+email)
	}
	return config.RemoveRedisKey(keys...)
}

// GetUserCached resolves a user from Redis, falling back to Firestore and
// re-priming the cache.
func GetUserCached(ctx context.Context, store UserStore, email string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+email, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}
	u, err := store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	_ = config.SetRedisObject("User:"+email, u, utils.TokenLifespan())
	return u, nil
}
