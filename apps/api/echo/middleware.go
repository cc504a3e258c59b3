package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/parlemonde/clap-sub002/core/project"
)

const ctxObjectKey = "object"

var errPrjNotFoundInCtx = errors.New("project object not found in echo.Context")

// teacherMiddleware rejects students. After projectMiddleware it restricts a route to the project owner.
func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsStudent() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// projectMiddleware loads the project of the `:id` param. Only its owner and the
// students who joined it can see it: everybody else gets a 404.
func projectMiddleware(svc *project.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			id, err := strconv.Atoi(ctx.Param("id"))
			if err != nil {
				return errHttpNotFound
			}

			prj, err := svc.Get(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == project.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding project by ID")
			}
			if (claims.IsStudent() && claims.ProjectID == prj.ID) || (!claims.IsStudent() && claims.UserID == prj.UserID) {
				ctx.Set(ctxObjectKey, prj)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

func getContextProject(ctx echo.Context) (project.Project, error) {
	prj, ok := ctx.Get(ctxObjectKey).(project.Project)
	if !ok {
		return project.Project{}, errors.Wrap(errPrjNotFoundInCtx, "retrieving object from context")
	}
	return prj, nil
}
