package gate

import "github.com/sakif/members-only/internal/model"

// Every predicate answers false for a nil (anonymous) user.

func CanPostMessage(u *model.User) bool {
	return u != nil
}

// CanJoinClub is true until the user is a member.
func CanJoinClub(u *model.User) bool {
	return u != nil && !u.IsMember
}

// CanBecomeAdmin is true until the user is an admin.
func CanBecomeAdmin(u *model.User) bool {
	return u != nil && !u.IsAdmin
}

func CanDeleteMessage(u *model.User) bool {
	return u != nil && u.IsAdmin
}

// CanSeeAuthors decides whether message authors and timestamps are shown.
// Admins see them even if they never joined the club.
func CanSeeAuthors(u *model.User) bool {
	return u != nil && (u.IsMember || u.IsAdmin)
}
