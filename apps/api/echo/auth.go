package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/parlemonde/clap-sub002/core"
	"github.com/parlemonde/clap-sub002/core/project"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"

	contextTokenKey = "userToken"
	audience        = "Clap"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Role       string `json:"role"`
	UserID     int    `json:"userId,omitempty"`
	Email      string `json:"email,omitempty"`
	ProjectID  int    `json:"projectId,omitempty"`  // students only
	QuestionID int    `json:"questionId,omitempty"` // students only
}

var _ core.Person = Claims{}

func (c Claims) IsStudent() bool { return c.Role == RoleStudent }

// Actor converts the claims to the caller of a project operation.
func (c Claims) Actor() project.Actor {
	return project.Actor{
		UserID:     c.UserID,
		Email:      c.Email,
		Student:    c.IsStudent(),
		ProjectID:  c.ProjectID,
		SequenceID: c.QuestionID,
	}
}

func (c Claims) LogPerson() (string, string, string) {
	if c.IsStudent() {
		return "student:" + strconv.Itoa(c.ProjectID) + ":" + strconv.Itoa(c.QuestionID), RoleStudent, ""
	}
	return strconv.Itoa(c.UserID), c.Email, c.Email
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func newClaims(conf *core.Config, delta time.Duration, subject string) jwt.StandardClaims {
	now := time.Now()
	return jwt.StandardClaims{
		Issuer:    conf.AppName,
		Subject:   subject,
		Audience:  audience,
		ExpiresAt: now.Add(delta).Unix(),
		IssuedAt:  now.Unix(),
	}
}

// TeacherClaims identifies a teacher account of the identity provider.
func TeacherClaims(conf *core.Config, userID int, email string) *Claims {
	return &Claims{
		StandardClaims: newClaims(conf, conf.Server.JWTExpirationDelta, strconv.Itoa(userID)),
		Role:           RoleTeacher,
		UserID:         userID,
		Email:          email,
	}
}

// StudentClaims scopes a student to one sequence of a project.
func StudentClaims(conf *core.Config, projectID, questionID int) *Claims {
	return &Claims{
		StandardClaims: newClaims(conf, conf.Server.StudentJWTExpirationDelta, ""),
		Role:           RoleStudent,
		ProjectID:      projectID,
		QuestionID:     questionID,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
