// Package users is a small in-memory credential store for the FTP server.
// Passwords are kept as bcrypt hashes only.
package users

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is one account. The password is stored hashed; Verify is the only
// way to check it.
type User struct {
	Username string
	hash     []byte
	allowed  []netip.Prefix // empty list allows any origin
}

// Verify checks a cleartext password against the stored hash.
func (u *User) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword(u.hash, []byte(password)) == nil
}

// AddIP allows logins from the given address or CIDR prefix.
func (u *User) AddIP(cidr string) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		addr, aerr := netip.ParseAddr(cidr)
		if aerr != nil {
			return errors.Join(err, aerr)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}
	u.allowed = append(u.allowed, prefix)
	return nil
}

// AllowedFrom reports whether addr may log in as this user. A user without
// any registered origin accepts all addresses.
func (u *User) AllowedFrom(addr netip.Addr) bool {
	if len(u.allowed) == 0 {
		return true
	}
	for _, prefix := range u.allowed {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// Users finds accounts by username.
type Users interface {
	// Get finds a user by username; it returns an error when the user is
	// unknown.
	Get(username string) (*User, error)
}

var _ Users = &LocalUsers{}

// LocalUsers is a concurrency-safe in-memory Users store.
type LocalUsers struct {
	users  map[string]*User
	lock   sync.RWMutex
	logger *slog.Logger
}

func NewLocalUsers(logger *slog.Logger) *LocalUsers {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalUsers{
		users:  make(map[string]*User),
		logger: logger,
	}
}

func (u *LocalUsers) Get(username string) (*User, error) {
	u.lock.RLock()
	defer u.lock.RUnlock()
	user, ok := u.users[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// Add creates or replaces an account. The password is hashed before it is
// stored; the cleartext is not retained.
func (u *LocalUsers) Add(username, password string) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		u.logger.Error("hashing password failed", "username", username, "error", err)
		return nil
	}
	u.lock.Lock()
	defer u.lock.Unlock()
	newUser := &User{
		Username: username,
		hash:     hash,
	}
	u.users[newUser.Username] = newUser
	u.logger.Debug("user added", "username", username)
	return newUser
}

// Remove deletes an account and returns it, or nil when it did not exist.
func (u *LocalUsers) Remove(username string) *User {
	u.lock.Lock()
	defer u.lock.Unlock()
	oldUser := u.users[username]
	delete(u.users, username)
	return oldUser
}
