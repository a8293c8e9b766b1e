package store

import (
	"context"

	"capset/internal/models"
)

// ListValidationProblems returns every (image, required category) pair
// where the image has no caption assigned to that category.
func (t *Tx) ListValidationProblems(ctx context.Context) ([]models.ValidationProblem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT i.id, i.path, c.id, c.name
		FROM images i
		CROSS JOIN categories c
		WHERE c.required = 1
		  AND NOT EXISTS (
		    SELECT 1
		    FROM image_captions ic
		    JOIN caption_categories cc ON cc.caption_id = ic.caption_id
		    WHERE ic.image_id = i.id AND cc.category_id = c.id
		  )
		ORDER BY i.path ASC, c.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	problems := []models.ValidationProblem{}
	for rows.Next() {
		var p models.ValidationProblem
		if err := rows.Scan(&p.ImageID, &p.ImagePath, &p.CategoryID, &p.CategoryName); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}
