package service

import "context"

// GroupAccess classifies a caller's relationship to a study group. It is
// the single authorization primitive used by group, lesson and mark
// endpoints: teachers manage, students read their own standing, everyone
// else is denied.
type GroupAccess int

const (
	AccessNone GroupAccess = iota
	AccessStudent
	AccessTeacher
)

type membershipChecker interface {
	IsTeacher(ctx context.Context, groupID, userID string) (bool, error)
	IsStudent(ctx context.Context, groupID, userID string) (bool, error)
}

// resolveGroupAccess looks up the caller's membership in both sets.
// Teacher membership wins when a user somehow holds both.
func resolveGroupAccess(ctx context.Context, repo membershipChecker, groupID, userID string) (GroupAccess, error) {
	teacher, err := repo.IsTeacher(ctx, groupID, userID)
	if err != nil {
		return AccessNone, err
	}
	if teacher {
		return AccessTeacher, nil
	}
	student, err := repo.IsStudent(ctx, groupID, userID)
	if err != nil {
		return AccessNone, err
	}
	if student {
		return AccessStudent, nil
	}
	return AccessNone, nil
}
