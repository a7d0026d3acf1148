package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// birthdayLayout is the stored form of the birthday field.
const birthdayLayout = "2006-01-02"

// Address is the optional postal address attached to a user.
type Address struct {
	Address1 string
	Address2 string
	City     string
	State    string
	Zip      string
	Country  string
}

// UserRecord is the typed view of a user hash. Optional fields are nil when
// the underlying hash field is absent.
type UserRecord struct {
	ID           uint64
	Username     string
	PasswordHash string

	DisplayName *string
	FirstName   *string
	LastName    *string
	Email       *string
	Birthday    *time.Time
	Phone       *string
	ImageURL    *string

	FirstNameConfirmed bool
	LastNameConfirmed  bool
	EmailConfirmed     bool
	BirthdayConfirmed  bool
	PhoneConfirmed     bool
	AddressConfirmed   bool

	AuthenticatorSecret *string

	Enabled          bool
	BannedUntil      time.Time
	RegistrationTime time.Time
	LastActivity     time.Time
}

// Banned reports whether the account's ban is still in force at now. Bans
// expire on their own once the stored timestamp passes.
func (r *UserRecord) Banned(now time.Time) bool {
	return r.BannedUntil.After(now)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// KEYS[1] = username index hash
// KEYS[2] = email index hash
// KEYS[3] = user ID counter
// ARGV[1] = normalized username
// ARGV[2] = normalized email
// ARGV[3] = user key prefix
// ARGV[4..] = alternating field, value pairs for the new hash
//
// Returns the allocated ID, or error string "username_taken" / "email_taken".
var createUserLua = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return {err='username_taken'}
end
if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 1 then
  return {err='email_taken'}
end
local id = redis.call('INCR', KEYS[3]) - 1
redis.call('HSET', KEYS[1], ARGV[1], id)
redis.call('HSET', KEYS[2], ARGV[2], id)
local key = ARGV[3] .. id
for i = 4, #ARGV, 2 do
  redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
return id
`)

// CreateUser allocates an ID and writes the user hash plus both uniqueness
// indices in one atomic step. Username and email uniqueness is
// case-insensitive.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (uint64, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	args := []interface{}{
		normalizeKey(username),
		normalizeKey(email),
		s.k(userKeyPrefix),
		"username", username,
		"password", passwordHash,
		"email", email,
		"email_confirmed", "false",
		"enabled", "true",
		"banned", "0",
		"registration_time", now,
		"last_activity", now,
	}
	keys := []string{s.k(usernameIndexKey), s.k(emailIndexKey), s.k(userCounterKey)}

	id, err := createUserLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		switch err.Error() {
		case "username_taken":
			return 0, ErrUsernameTaken
		case "email_taken":
			return 0, ErrEmailTaken
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return uint64(id), nil
}

// User loads the user hash for id.
func (s *Store) User(ctx context.Context, id uint64) (*UserRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}
	return decodeUser(id, fields)
}

// UserIDByUsername resolves a username to its ID, case-insensitively.
func (s *Store) UserIDByUsername(ctx context.Context, username string) (uint64, error) {
	return s.indexLookup(ctx, s.k(usernameIndexKey), normalizeKey(username))
}

// UserIDByEmail resolves an email address to a user ID, case-insensitively.
func (s *Store) UserIDByEmail(ctx context.Context, email string) (uint64, error) {
	return s.indexLookup(ctx, s.k(emailIndexKey), normalizeKey(email))
}

// UserIDs returns the IDs of every registered user, read from the username
// index. Order is unspecified.
func (s *Store) UserIDs(ctx context.Context) ([]uint64, error) {
	raw, err := s.redis.HVals(ctx, s.k(usernameIndexKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt index entry %q", ErrStoreUnavailable, v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) indexLookup(ctx context.Context, indexKey, member string) (uint64, error) {
	raw, err := s.redis.HGet(ctx, indexKey, member).Result()
	if err == redis.Nil {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt index entry %q", ErrStoreUnavailable, raw)
	}
	return id, nil
}

// KEYS[1] = index hash
// KEYS[2] = user hash
// ARGV[1] = old normalized value
// ARGV[2] = new normalized value
// ARGV[3] = hash field name
// ARGV[4] = new raw value
// ARGV[5] = confirmation field to reset, or ""
var renameIndexedLua = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[2]) == 1 then
  return {err='taken'}
end
local id = redis.call('HGET', KEYS[1], ARGV[1])
if not id then
  return {err='not_found'}
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[2], id)
redis.call('HSET', KEYS[2], ARGV[3], ARGV[4])
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[2], ARGV[5], 'false')
end
return 1
`)

// UpdateUsername renames a user, keeping the username index consistent. The
// old index entry is removed and the new one added in the same atomic step.
func (s *Store) UpdateUsername(ctx context.Context, id uint64, oldUsername, newUsername string) error {
	return s.renameIndexed(ctx, s.k(usernameIndexKey), id,
		normalizeKey(oldUsername), normalizeKey(newUsername),
		"username", newUsername, "", ErrUsernameTaken)
}

// UpdateEmail changes a user's email address and resets its confirmation
// flag. The email index follows atomically.
func (s *Store) UpdateEmail(ctx context.Context, id uint64, oldEmail, newEmail string) error {
	return s.renameIndexed(ctx, s.k(emailIndexKey), id,
		normalizeKey(oldEmail), normalizeKey(newEmail),
		"email", newEmail, "email_confirmed", ErrEmailTaken)
}

func (s *Store) renameIndexed(ctx context.Context, indexKey string, id uint64, oldMember, newMember, field, rawValue, confirmField string, takenErr error) error {
	keys := []string{indexKey, s.userKey(id)}
	err := renameIndexedLua.Run(ctx, s.redis, keys, oldMember, newMember, field, rawValue, confirmField).Err()
	if err != nil {
		switch err.Error() {
		case "taken":
			return takenErr
		case "not_found":
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SetPassword replaces the stored password hash.
func (s *Store) SetPassword(ctx context.Context, id uint64, passwordHash string) error {
	return s.setUserField(ctx, id, "password", passwordHash)
}

// SetDisplayName sets the display name.
func (s *Store) SetDisplayName(ctx context.Context, id uint64, name string) error {
	return s.setUserField(ctx, id, "display_name", name)
}

// SetFirstName sets the first name and clears its confirmation flag.
func (s *Store) SetFirstName(ctx context.Context, id uint64, name string) error {
	return s.setUserFields(ctx, id, "first_name", name, "first_name_confirmed", "false")
}

// SetLastName sets the last name and clears its confirmation flag.
func (s *Store) SetLastName(ctx context.Context, id uint64, name string) error {
	return s.setUserFields(ctx, id, "last_name", name, "last_name_confirmed", "false")
}

// SetBirthday sets the birthday and clears its confirmation flag.
func (s *Store) SetBirthday(ctx context.Context, id uint64, birthday time.Time) error {
	return s.setUserFields(ctx, id, "birthday", birthday.Format(birthdayLayout), "birthday_confirmed", "false")
}

// SetPhone sets the phone number and clears its confirmation flag.
func (s *Store) SetPhone(ctx context.Context, id uint64, phone string) error {
	return s.setUserFields(ctx, id, "phone", phone, "phone_confirmed", "false")
}

// SetImageURL sets the profile image URL.
func (s *Store) SetImageURL(ctx context.Context, id uint64, url string) error {
	return s.setUserField(ctx, id, "image_url", url)
}

// ConfirmEmail marks the user's email address as confirmed.
func (s *Store) ConfirmEmail(ctx context.Context, id uint64) error {
	return s.setUserField(ctx, id, "email_confirmed", "true")
}

// SetEnabled toggles the account enabled flag.
func (s *Store) SetEnabled(ctx context.Context, id uint64, enabled bool) error {
	return s.setUserField(ctx, id, "enabled", strconv.FormatBool(enabled))
}

// Ban bans the account until the given instant and disables it. The ban
// lifts on its own once the timestamp passes; the account stays disabled
// until re-enabled.
func (s *Store) Ban(ctx context.Context, id uint64, until time.Time) error {
	return s.setUserFields(ctx, id,
		"banned", strconv.FormatInt(until.Unix(), 10),
		"enabled", "false")
}

// Unban clears the account's ban timestamp. It does not re-enable the
// account.
func (s *Store) Unban(ctx context.Context, id uint64) error {
	return s.setUserField(ctx, id, "banned", "0")
}

// TouchActivity records the current time as the user's last activity.
func (s *Store) TouchActivity(ctx context.Context, id uint64) error {
	return s.setUserField(ctx, id, "last_activity", strconv.FormatInt(time.Now().Unix(), 10))
}

// RotateAuthenticatorSecret replaces the user's TOTP secret.
func (s *Store) RotateAuthenticatorSecret(ctx context.Context, id uint64, secret string) error {
	return s.setUserField(ctx, id, "authenticator_secret", secret)
}

func (s *Store) setUserField(ctx context.Context, id uint64, field, value string) error {
	return s.setUserFields(ctx, id, field, value)
}

func (s *Store) setUserFields(ctx context.Context, id uint64, pairs ...string) error {
	exists, err := s.redis.Exists(ctx, s.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return ErrUserNotFound
	}
	args := make([]interface{}, len(pairs))
	for i, p := range pairs {
		args[i] = p
	}
	if err := s.redis.HSet(ctx, s.userKey(id), args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Address loads the user's postal address, or ErrUserNotFound when none is
// stored.
func (s *Store) Address(ctx context.Context, id uint64) (*Address, error) {
	fields, err := s.redis.HGetAll(ctx, s.addressKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}
	return &Address{
		Address1: fields["address1"],
		Address2: fields["address2"],
		City:     fields["city"],
		State:    fields["state"],
		Zip:      fields["zip"],
		Country:  fields["country"],
	}, nil
}

// SetAddress replaces the user's postal address and clears its confirmation
// flag.
func (s *Store) SetAddress(ctx context.Context, id uint64, addr Address) error {
	exists, err := s.redis.Exists(ctx, s.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return ErrUserNotFound
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.addressKey(id),
			"address1", addr.Address1,
			"address2", addr.Address2,
			"city", addr.City,
			"state", addr.State,
			"zip", addr.Zip,
			"country", addr.Country,
		)
		pipe.HSet(ctx, s.userKey(id), "address_confirmed", "false")
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAddress removes the user's postal address.
func (s *Store) DeleteAddress(ctx context.Context, id uint64) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.addressKey(id))
		pipe.HDel(ctx, s.userKey(id), "address_confirmed")
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteUser removes the user hash, its address, and both index entries in
// one transaction.
func (s *Store) DeleteUser(ctx context.Context, id uint64) error {
	rec, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.k(usernameIndexKey), normalizeKey(rec.Username))
		if rec.Email != nil {
			pipe.HDel(ctx, s.k(emailIndexKey), normalizeKey(*rec.Email))
		}
		pipe.Del(ctx, s.userKey(id), s.addressKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) userKey(id uint64) string {
	return s.k(userKeyPrefix) + strconv.FormatUint(id, 10)
}

func (s *Store) addressKey(id uint64) string {
	return s.userKey(id) + ":addr"
}

func decodeUser(id uint64, fields map[string]string) (*UserRecord, error) {
	rec := &UserRecord{ID: id}
	for field, value := range fields {
		switch field {
		case "username":
			rec.Username = value
		case "password":
			rec.PasswordHash = value
		case "display_name":
			rec.DisplayName = strptr(value)
		case "first_name":
			rec.FirstName = strptr(value)
		case "first_name_confirmed":
			rec.FirstNameConfirmed = value == "true"
		case "last_name":
			rec.LastName = strptr(value)
		case "last_name_confirmed":
			rec.LastNameConfirmed = value == "true"
		case "email":
			rec.Email = strptr(value)
		case "email_confirmed":
			rec.EmailConfirmed = value == "true"
		case "birthday":
			t, err := time.Parse(birthdayLayout, value)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt birthday %q", ErrStoreUnavailable, value)
			}
			rec.Birthday = &t
		case "birthday_confirmed":
			rec.BirthdayConfirmed = value == "true"
		case "phone":
			rec.Phone = strptr(value)
		case "phone_confirmed":
			rec.PhoneConfirmed = value == "true"
		case "address_confirmed":
			rec.AddressConfirmed = value == "true"
		case "image_url":
			rec.ImageURL = strptr(value)
		case "authenticator_secret":
			rec.AuthenticatorSecret = strptr(value)
		case "enabled":
			rec.Enabled = value == "true"
		case "banned":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt banned %q", ErrStoreUnavailable, value)
			}
			if n != 0 {
				rec.BannedUntil = time.Unix(n, 0).UTC()
			}
		case "registration_time":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt registration_time %q", ErrStoreUnavailable, value)
			}
			rec.RegistrationTime = time.Unix(n, 0).UTC()
		case "last_activity":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: corrupt last_activity %q", ErrStoreUnavailable, value)
			}
			rec.LastActivity = time.Unix(n, 0).UTC()
		}
	}
	return rec, nil
}

func strptr(s string) *string {
	return &s
}
