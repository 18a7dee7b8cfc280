// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/avdeenkov/qapay-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuestionNotFound возвращается, если вопрос не найден.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionNotOpen возвращается при попытке ответить на вопрос не в статусе open.
	ErrQuestionNotOpen = errors.New("question is not open")
	// ErrAnswerNotFound возвращается, если ответ не найден.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrAnswerNotPending возвращается, если ответ не в статусе pending.
	ErrAnswerNotPending = errors.New("answer is not pending")
	// ErrQuestionNotAnswered возвращается при попытке оплаты вопроса без активного ответа.
	ErrQuestionNotAnswered = errors.New("question is not answered")
	// ErrNotRequester возвращается, если действие доступно только автору вопроса.
	ErrNotRequester = errors.New("caller is not the question requester")
	// ErrChargeNotFound возвращается, если платёж не найден.
	ErrChargeNotFound = errors.New("charge not found")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrPixKeyNotFound возвращается, если сохранённый PIX-ключ не найден.
	ErrPixKeyNotFound = errors.New("pix key not found")
	// ErrBankAccountNotFound возвращается, если банковские реквизиты не сохранены.
	ErrBankAccountNotFound = errors.New("bank account not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только временные ошибки: конфликты сериализации и дедлоки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserLogin возвращает логин пользователя по идентификатору.
func (r *PostgresRepository) GetUserLogin(ctx context.Context, userID int64) (string, error) {
	var login string
	err := r.pool.QueryRow(ctx,
		`SELECT login FROM users WHERE id = $1`,
		userID,
	).Scan(&login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user login: %w", err)
	}
	return login, nil
}

// GetPreferredGateway возвращает предпочитаемый платёжный шлюз пользователя.
func (r *PostgresRepository) GetPreferredGateway(ctx context.Context, userID int64) (model.GatewayKind, error) {
	var kind string
	err := r.pool.QueryRow(ctx,
		`SELECT preferred_gateway FROM users WHERE id = $1`,
		userID,
	).Scan(&kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get preferred gateway: %w", err)
	}
	return model.GatewayKind(kind), nil
}

// SetPreferredGateway сохраняет предпочитаемый платёжный шлюз пользователя.
func (r *PostgresRepository) SetPreferredGateway(ctx context.Context, userID int64, kind model.GatewayKind) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET preferred_gateway = $2 WHERE id = $1`,
		userID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("set preferred gateway: %w", err)
	}
	return nil
}

// CreateQuestion сохраняет новый вопрос в статусе open.
func (r *PostgresRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, subject, body, bounty, requester_id, requester_name, attachments, difficulty, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.Subject, q.Body, q.BountyCents, q.RequesterID, q.RequesterName,
		q.Attachments, q.Difficulty, string(model.QuestionStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// GetQuestion возвращает вопрос по идентификатору.
func (r *PostgresRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, subject, body, bounty, requester_id, requester_name, attachments, difficulty, status, created_at
		 FROM questions WHERE id = $1`,
		id,
	)

	var q model.Question
	var status string
	err := row.Scan(&q.ID, &q.Subject, &q.Body, &q.BountyCents, &q.RequesterID,
		&q.RequesterName, &q.Attachments, &q.Difficulty, &status, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	q.Status = model.QuestionStatus(status)

	return &q, nil
}

// CreateAnswer сохраняет ответ и переводит вопрос в статус answered.
// Строка вопроса блокируется, чтобы два конкурентных ответа на один
// open-вопрос не прошли оба.
func (r *PostgresRepository) CreateAnswer(ctx context.Context, a *model.Answer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM questions WHERE id = $1 FOR UPDATE`,
		a.QuestionID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("lock question: %w", err)
	}

	if model.QuestionStatus(status) != model.QuestionStatusOpen {
		return ErrQuestionNotOpen
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO answers (id, question_id, body, explanation, attachments, responder_id, responder_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.QuestionID, a.Body, a.Explanation, a.Attachments,
		a.ResponderID, a.ResponderName, string(model.AnswerStatusPending),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrQuestionNotOpen
		}
		return fmt.Errorf("insert answer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE questions SET status = $2 WHERE id = $1`,
		a.QuestionID, string(model.QuestionStatusAnswered),
	)
	if err != nil {
		return fmt.Errorf("update question status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetAnswer возвращает ответ вместе с денормализованными полями вопроса.
func (r *PostgresRepository) GetAnswer(ctx context.Context, id uuid.UUID) (*model.Answer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT a.id, a.question_id, a.body, a.explanation, a.attachments,
		        a.responder_id, a.responder_name, a.status, a.created_at,
		        q.subject, q.bounty
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.id = $1`,
		id,
	)

	var a model.Answer
	var status string
	err := row.Scan(&a.ID, &a.QuestionID, &a.Body, &a.Explanation, &a.Attachments,
		&a.ResponderID, &a.ResponderName, &status, &a.CreatedAt,
		&a.QuestionSubject, &a.BountyCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	a.Status = model.AnswerStatus(status)

	return &a, nil
}

// RejectAnswer отклоняет ответ и возвращает вопрос в статус open.
// Допустимо только автору вопроса и только для ответа в статусе pending.
func (r *PostgresRepository) RejectAnswer(ctx context.Context, answerID uuid.UUID, requesterID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var answerStatus string
	var questionID uuid.UUID
	var questionRequester int64
	err = tx.QueryRow(ctx,
		`SELECT a.status, q.id, q.requester_id
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.id = $1
		 FOR UPDATE OF a, q`,
		answerID,
	).Scan(&answerStatus, &questionID, &questionRequester)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAnswerNotFound
		}
		return fmt.Errorf("lock answer: %w", err)
	}

	if questionRequester != requesterID {
		return ErrNotRequester
	}
	if model.AnswerStatus(answerStatus) != model.AnswerStatusPending {
		return ErrAnswerNotPending
	}

	_, err = tx.Exec(ctx,
		`UPDATE answers SET status = $2 WHERE id = $1`,
		answerID, string(model.AnswerStatusRejected),
	)
	if err != nil {
		return fmt.Errorf("update answer status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE questions SET status = $2 WHERE id = $1`,
		questionID, string(model.QuestionStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("update question status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CreateCharge сохраняет запись о попытке оплаты.
func (r *PostgresRepository) CreateCharge(ctx context.Context, c *model.Charge) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO charges (id, question_id, answer_id, amount, currency, gateway, status, redirect_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.QuestionID, c.AnswerID, c.AmountCents, c.Currency,
		string(c.Gateway), string(c.Status), c.RedirectURL,
	)
	if err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

// GetChargeByAnswer возвращает последнюю попытку оплаты для ответа.
func (r *PostgresRepository) GetChargeByAnswer(ctx context.Context, answerID uuid.UUID) (*model.Charge, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, question_id, answer_id, amount, currency, gateway, status, redirect_url, created_at, confirmed_at
		 FROM charges
		 WHERE answer_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		answerID,
	)

	var c model.Charge
	var gatewayKind, status string
	err := row.Scan(&c.ID, &c.QuestionID, &c.AnswerID, &c.AmountCents, &c.Currency,
		&gatewayKind, &status, &c.RedirectURL, &c.CreatedAt, &c.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("get charge: %w", err)
	}
	c.Gateway = model.GatewayKind(gatewayKind)
	c.Status = model.ChargeStatus(status)

	return &c, nil
}

// SettleCharge атомарно применяет подтверждение платежа: ответ становится
// accepted, вопрос закрывается, автору ответа зачисляется payoutCents и
// добавляется запись в историю операций. Возвращает false, если платёж уже
// был применён ранее, — повторный вызов не меняет ни баланс, ни статусы.
func (r *PostgresRepository) SettleCharge(ctx context.Context, chargeID string, payoutCents int64, description string) (bool, error) {
	applied := false

	err := r.withRetry(ctx, func() error {
		settled, err := r.settleChargeTx(ctx, chargeID, payoutCents, description)
		if err != nil {
			return err
		}
		applied = settled
		return nil
	})

	return applied, err
}

func (r *PostgresRepository) settleChargeTx(ctx context.Context, chargeID string, payoutCents int64, description string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// CAS по статусу платежа: второй и последующие вызовы не находят строку
	// и завершаются как уже применённые.
	var questionID, answerID uuid.UUID
	err = tx.QueryRow(ctx,
		`UPDATE charges
		 SET status = $2, confirmed_at = now()
		 WHERE id = $1 AND status IN ($3, $4)
		 RETURNING question_id, answer_id`,
		chargeID, string(model.ChargeStatusConfirmed),
		string(model.ChargeStatusCreated), string(model.ChargeStatusPending),
	).Scan(&questionID, &answerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.chargeAlreadySettled(ctx, tx, chargeID)
		}
		return false, fmt.Errorf("confirm charge: %w", err)
	}

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM questions WHERE id = $1 FOR UPDATE`, questionID).Scan(&dummy)
	if err != nil {
		return false, fmt.Errorf("lock question: %w", err)
	}

	var responderID int64
	var answerStatus string
	err = tx.QueryRow(ctx,
		`SELECT responder_id, status FROM answers WHERE id = $1 FOR UPDATE`,
		answerID,
	).Scan(&responderID, &answerStatus)
	if err != nil {
		return false, fmt.Errorf("lock answer: %w", err)
	}

	// Платёж подтверждён, но ответ успели отклонить: транзакция откатывается
	// целиком, статус платежа остаётся прежним.
	if model.AnswerStatus(answerStatus) != model.AnswerStatusPending {
		return false, ErrAnswerNotPending
	}

	_, err = tx.Exec(ctx,
		`UPDATE answers SET status = $2 WHERE id = $1`,
		answerID, string(model.AnswerStatusAccepted),
	)
	if err != nil {
		return false, fmt.Errorf("accept answer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE questions SET status = $2 WHERE id = $1`,
		questionID, string(model.QuestionStatusClosed),
	)
	if err != nil {
		return false, fmt.Errorf("close question: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO balances (user_id, available, total_earned)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET available = balances.available + EXCLUDED.available,
		     total_earned = balances.total_earned + EXCLUDED.total_earned`,
		responderID, payoutCents,
	)
	if err != nil {
		return false, fmt.Errorf("credit balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, direction, amount, description, ref)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), responderID, string(model.TransactionCredit), payoutCents, description, chargeID,
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

func (r *PostgresRepository) chargeAlreadySettled(ctx context.Context, tx pgx.Tx, chargeID string) (bool, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM charges WHERE id = $1`, chargeID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrChargeNotFound
		}
		return false, fmt.Errorf("check charge status: %w", err)
	}

	if model.ChargeStatus(status) == model.ChargeStatusConfirmed {
		return false, nil
	}
	return false, fmt.Errorf("charge %s in unexpected status %s", chargeID, status)
}

// MarkChargeFailed переводит платёж в терминальный статус failed.
// Подтверждённый платёж не затрагивается.
func (r *PostgresRepository) MarkChargeFailed(ctx context.Context, chargeID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE charges SET status = $2 WHERE id = $1 AND status IN ($3, $4)`,
		chargeID, string(model.ChargeStatusFailed),
		string(model.ChargeStatusCreated), string(model.ChargeStatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark charge failed: %w", err)
	}
	return nil
}

// MarkChargePending переводит платёж из created в pending.
func (r *PostgresRepository) MarkChargePending(ctx context.Context, chargeID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE charges SET status = $2 WHERE id = $1 AND status = $3`,
		chargeID, string(model.ChargeStatusPending), string(model.ChargeStatusCreated),
	)
	if err != nil {
		return fmt.Errorf("mark charge pending: %w", err)
	}
	return nil
}

// PendingCharge описывает платёж, ожидающий подтверждения.
type PendingCharge struct {
	ID         string
	QuestionID uuid.UUID
	AnswerID   uuid.UUID
}

// GetPendingCharges возвращает платежи, для которых нужно запросить статус у шлюза.
func (r *PostgresRepository) GetPendingCharges(ctx context.Context, limit int) ([]PendingCharge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, answer_id
		 FROM charges
		 WHERE status IN ($1, $2)
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.ChargeStatusCreated), string(model.ChargeStatusPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending charges: %w", err)
	}
	defer rows.Close()

	var res []PendingCharge
	for rows.Next() {
		var c PendingCharge
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.AnswerID); err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetBalance возвращает баланс пользователя в центах, создавая нулевую
// запись при первом обращении.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (available, totalEarned, totalWithdrawn int64, err error) {
	_, err = r.pool.Exec(ctx,
		`INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("init balance: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT available, total_earned, total_withdrawn FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&available, &totalEarned, &totalWithdrawn)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("get balance: %w", err)
	}

	return available, totalEarned, totalWithdrawn, nil
}

// ListTransactions возвращает историю операций пользователя.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, direction, amount, description, ref, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var direction string
		if err := rows.Scan(&t.ID, &t.UserID, &direction, &t.AmountCents, &t.Description, &t.Ref, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Direction = model.TransactionDirection(direction)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateWithdrawal сохраняет заявку на вывод средств в статусе requested.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO withdrawals (id, user_id, amount, fee, net, method, gateway, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.UserID, w.AmountCents, w.FeeCents, w.NetCents,
		string(w.Method), string(w.Gateway), string(model.WithdrawalStatusRequested),
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// CompleteWithdrawal атомарно списывает полную сумму заявки с баланса,
// добавляет запись в историю операций и помечает заявку оплаченной.
// Строка баланса блокируется, чтобы конкурентные выводы не превысили
// доступный остаток.
func (r *PostgresRepository) CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, userID int64, amountCents int64, description string) error {
	return r.withRetry(ctx, func() error {
		return r.completeWithdrawalTx(ctx, withdrawalID, userID, amountCents, description)
	})
}

func (r *PostgresRepository) completeWithdrawalTx(ctx context.Context, withdrawalID uuid.UUID, userID int64, amountCents int64, description string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("init balance: %w", err)
	}

	var available int64
	err = tx.QueryRow(ctx,
		`SELECT available FROM balances WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&available)
	if err != nil {
		return fmt.Errorf("lock balance: %w", err)
	}

	if amountCents > available {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE balances
		 SET available = available - $2, total_withdrawn = total_withdrawn + $2
		 WHERE user_id = $1`,
		userID, amountCents,
	)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, direction, amount, description, ref)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), userID, string(model.TransactionDebit), amountCents, description, withdrawalID.String(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE withdrawals SET status = $2 WHERE id = $1`,
		withdrawalID, string(model.WithdrawalStatusPaid),
	)
	if err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// FailWithdrawal помечает заявку на вывод неуспешной. Баланс не затрагивается.
func (r *PostgresRepository) FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE withdrawals SET status = $2 WHERE id = $1 AND status = $3`,
		withdrawalID, string(model.WithdrawalStatusFailed), string(model.WithdrawalStatusRequested),
	)
	if err != nil {
		return fmt.Errorf("fail withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawalsByUser возвращает историю заявок на вывод пользователя.
func (r *PostgresRepository) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, fee, net, method, gateway, status, created_at
		 FROM withdrawals
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		var w model.Withdrawal
		var method, gatewayKind, status string
		if err := rows.Scan(&w.ID, &w.UserID, &w.AmountCents, &w.FeeCents, &w.NetCents,
			&method, &gatewayKind, &status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		w.Method = model.WithdrawalMethod(method)
		w.Gateway = model.GatewayKind(gatewayKind)
		w.Status = model.WithdrawalStatus(status)
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SavePixKey сохраняет PIX-ключ пользователя. Первый сохранённый ключ
// автоматически становится основным.
func (r *PostgresRepository) SavePixKey(ctx context.Context, k *model.PixKey) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM pix_keys WHERE user_id = $1`,
		k.UserID,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("count pix keys: %w", err)
	}

	isPrimary := k.IsPrimary || existing == 0

	_, err = tx.Exec(ctx,
		`INSERT INTO pix_keys (id, user_id, key_type, key_value, nickname, is_primary)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, key_value) DO UPDATE
		 SET key_type = EXCLUDED.key_type, nickname = EXCLUDED.nickname`,
		k.ID, k.UserID, string(k.Type), k.Key, k.Nickname, isPrimary,
	)
	if err != nil {
		return fmt.Errorf("insert pix key: %w", err)
	}
	k.IsPrimary = isPrimary

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetPixKey возвращает сохранённый PIX-ключ, принадлежащий пользователю.
func (r *PostgresRepository) GetPixKey(ctx context.Context, id uuid.UUID, userID int64) (*model.PixKey, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, key_type, key_value, nickname, is_primary, created_at
		 FROM pix_keys
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	var k model.PixKey
	var keyType string
	err := row.Scan(&k.ID, &k.UserID, &keyType, &k.Key, &k.Nickname, &k.IsPrimary, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPixKeyNotFound
		}
		return nil, fmt.Errorf("get pix key: %w", err)
	}
	k.Type = model.PixKeyType(keyType)

	return &k, nil
}

// SaveBankAccount сохраняет банковские реквизиты пользователя, заменяя
// существующую запись.
func (r *PostgresRepository) SaveBankAccount(ctx context.Context, b *model.BankAccount) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bank_accounts (user_id, bank_code, agency, account, digit, account_type, holder_name, holder_tax_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE
		 SET bank_code = EXCLUDED.bank_code,
		     agency = EXCLUDED.agency,
		     account = EXCLUDED.account,
		     digit = EXCLUDED.digit,
		     account_type = EXCLUDED.account_type,
		     holder_name = EXCLUDED.holder_name,
		     holder_tax_id = EXCLUDED.holder_tax_id`,
		b.UserID, b.BankCode, b.Agency, b.Account, b.Digit,
		string(b.Type), b.HolderName, b.HolderTaxID,
	)
	if err != nil {
		return fmt.Errorf("save bank account: %w", err)
	}
	return nil
}

// GetBankAccount возвращает банковские реквизиты пользователя.
func (r *PostgresRepository) GetBankAccount(ctx context.Context, userID int64) (*model.BankAccount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, bank_code, agency, account, digit, account_type, holder_name, holder_tax_id
		 FROM bank_accounts
		 WHERE user_id = $1`,
		userID,
	)

	var b model.BankAccount
	var accountType string
	err := row.Scan(&b.UserID, &b.BankCode, &b.Agency, &b.Account, &b.Digit,
		&accountType, &b.HolderName, &b.HolderTaxID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBankAccountNotFound
		}
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	b.Type = model.BankAccountType(accountType)

	return &b, nil
}
