// Package repository provides data persistence implementations for sales.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/allisson/possync/internal/database"
	"github.com/allisson/possync/internal/sales/domain"
)

const saleColumns = `id, terminal_id, employee_id, customer_id, items, subtotal_cents, tax_cents, total_cents, created_at`

const paymentColumns = `id, sale_id, method, amount_cents, created_at`

// SQLiteSaleRepository handles sale persistence for the terminal-local
// SQLite store.
type SQLiteSaleRepository struct {
	db *sql.DB
}

// NewSQLiteSaleRepository creates a new SQLiteSaleRepository.
func NewSQLiteSaleRepository(db *sql.DB) *SQLiteSaleRepository {
	return &SQLiteSaleRepository{
		db: db,
	}
}

// Create inserts the sale and its payments.
func (r *SQLiteSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	querier := database.GetTx(ctx, r.db)

	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}

	query := `INSERT INTO sales
		(id, terminal_id, employee_id, customer_id, items, subtotal_cents, tax_cents, total_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := querier.ExecContext(ctx, query,
		sale.ID, sale.TerminalID, sale.EmployeeID, sale.CustomerID, string(items),
		sale.SubtotalCents, sale.TaxCents, sale.TotalCents, sale.CreatedAt); err != nil {
		return err
	}

	paymentQuery := `INSERT INTO payments (id, sale_id, method, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`
	for _, payment := range sale.Payments {
		if _, err := querier.ExecContext(ctx, paymentQuery,
			payment.ID, payment.SaleID, payment.Method, payment.AmountCents, payment.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a sale with its payments.
func (r *SQLiteSaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = ?`
	sale, err := scanSale(querier.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}

	paymentQuery := `SELECT ` + paymentColumns + ` FROM payments WHERE sale_id = ? ORDER BY created_at ASC`
	rows, err := querier.QueryContext(ctx, paymentQuery, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.ID, &payment.SaleID, &payment.Method,
			&payment.AmountCents, &payment.CreatedAt); err != nil {
			return nil, err
		}
		sale.Payments = append(sale.Payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sale, nil
}

// ListRecent retrieves up to limit sales for the terminal, newest first.
// Payments are not loaded.
func (r *SQLiteSaleRepository) ListRecent(ctx context.Context, terminalID string, limit int) ([]*domain.Sale, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + saleColumns + ` FROM sales
		WHERE terminal_id = ?
		ORDER BY created_at DESC
		LIMIT ?`
	rows, err := querier.QueryContext(ctx, query, terminalID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sales []*domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// saleScanner matches both sql.Row and sql.Rows.
type saleScanner interface {
	Scan(dest ...any) error
}

func scanSale(scanner saleScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var items string
	if err := scanner.Scan(&sale.ID, &sale.TerminalID, &sale.EmployeeID, &sale.CustomerID,
		&items, &sale.SubtotalCents, &sale.TaxCents, &sale.TotalCents, &sale.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &sale.Items); err != nil {
		return nil, err
	}
	return &sale, nil
}
