package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// MsgEmailTaken is reported when an account email is already registered.
const MsgEmailTaken = "the email has already been taken."

// UserService covers first-run setup, sign in and user management.
type UserService struct {
	store    storage.UserStore
	hashCost int
	logger   *log.Logger
}

func NewUserService(store storage.UserStore, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &UserService{
		store:    store,
		hashCost: bcrypt.DefaultCost,
		logger:   logger.WithComponent(log.ComponentUsers),
	}
}

// WithHashCost sets the bcrypt cost, lowered in tests.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// NeedsSetup reports whether no account exists yet. It reads the store on
// every call.
func (s *UserService) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n == 0, nil
}

// Setup creates the first administrator. A concurrent or late submission
// gets a *core.ConflictError.
func (s *UserService) Setup(ctx context.Context, in core.UserInput) (core.User, error) {
	in.Role = core.RoleAdmin
	in.Normalize()
	if err := in.Validate(true); err != nil {
		return core.User{}, err
	}
	hash, err := auth.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return core.User{}, err
	}

	u, err := s.store.CreateFirstUser(ctx, core.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         core.RoleAdmin,
	})
	if err != nil {
		var conflict *core.ConflictError
		if errors.As(err, &conflict) {
			s.logger.WarnContext(ctx, "Setup rejected, an account already exists",
				log.NewFields().WithError(err, log.ErrorTypeConflict).WithOperation(log.OpSetup).ToSlice()...)
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("create first user: %w", err)
	}

	s.logger.InfoContext(ctx, "Initial administrator created",
		log.NewFields().WithOperation(log.OpSetup).WithUser(u.ID, string(u.Role)).ToSlice()...)
	return u, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords both yield auth.ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	in := core.UserInput{Email: email}
	in.Normalize()
	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return core.User{}, auth.ErrInvalidCredentials
		}
		return core.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Failed sign in",
			log.NewFields().WithOperation(log.OpLogin).WithUser(u.ID, string(u.Role)).ToSlice()...)
		return core.User{}, err
	}
	return u, nil
}

// Lookup returns the account behind a session.
func (s *UserService) Lookup(ctx context.Context, id int64) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns accounts latest first, paged by the fixed page size.
func (s *UserService) List(ctx context.Context, actor core.Actor, page int) (core.Page[core.User], error) {
	if err := auth.Authorize(actor, auth.ActionUsersManage, 0); err != nil {
		return core.Page[core.User]{}, err
	}
	return s.store.ListUsers(ctx, page, storage.DefaultPageSize)
}

func (s *UserService) Get(ctx context.Context, actor core.Actor, id int64) (core.User, error) {
	if err := auth.Authorize(actor, auth.ActionUsersManage, 0); err != nil {
		return core.User{}, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *UserService) Create(ctx context.Context, actor core.Actor, in core.UserInput) (core.User, error) {
	if err := auth.Authorize(actor, auth.ActionUsersManage, 0); err != nil {
		return core.User{}, err
	}
	in.Normalize()
	if err := in.Validate(true); err != nil {
		return core.User{}, err
	}
	hash, err := auth.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return core.User{}, err
	}

	u, err := s.store.CreateUser(ctx, core.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	})
	if err != nil {
		return core.User{}, mapUserStoreError(err)
	}
	s.logger.InfoContext(ctx, "User created",
		log.NewFields().WithOperation(log.OpCreate).WithUser(u.ID, string(u.Role)).ToSlice()...)
	return u, nil
}

// Update changes an account. The password is re-hashed only when a new one is given.
func (s *UserService) Update(ctx context.Context, actor core.Actor, id int64, in core.UserInput) (core.User, error) {
	if err := auth.Authorize(actor, auth.ActionUsersManage, 0); err != nil {
		return core.User{}, err
	}
	current, err := s.store.GetUser(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	in.Normalize()
	if err := in.Validate(false); err != nil {
		return core.User{}, err
	}

	current.Name = in.Name
	current.Email = in.Email
	current.Role = in.Role
	if in.Password != "" {
		if current.PasswordHash, err = auth.HashPassword(in.Password, s.hashCost); err != nil {
			return core.User{}, err
		}
	}

	u, err := s.store.UpdateUser(ctx, current)
	if err != nil {
		return core.User{}, mapUserStoreError(err)
	}
	s.logger.InfoContext(ctx, "User updated",
		log.NewFields().WithOperation(log.OpUpdate).WithUser(u.ID, string(u.Role)).ToSlice()...)
	return u, nil
}

// Delete removes an account. Administrators cannot delete themselves; the
// deleted user's transactions stay in the ledger without an owner.
func (s *UserService) Delete(ctx context.Context, actor core.Actor, id int64) error {
	if err := auth.Authorize(actor, auth.ActionUsersManage, 0); err != nil {
		return err
	}
	if id == actor.ID {
		return &core.ForbiddenError{Action: "users.delete_self"}
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "User deleted",
		log.NewFields().WithOperation(log.OpDelete).WithUser(id, "").ToSlice()...)
	return nil
}

func mapUserStoreError(err error) error {
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return core.FieldError(core.FieldEmail, MsgEmailTaken)
	}
	return err
}
