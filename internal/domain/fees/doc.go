// Package fees содержит доменную модель учёта оплаты обучения студентов.
//
// Пакет отвечает на два вопроса: сколько студент сейчас должен и какие
// его начисления просрочены и не оплачены. Определяет:
//
//   - Value Object: Amount - неотрицательная денежная сумма
//   - Ledger: упорядоченный список начислений (Fee)
//   - Агрегат: Account - ledger плюс накопленные итоги
//   - Persistence record: AccountRecord, ToRecord / FromRecord
//   - Интерфейсы хранилища: Repository, RecordCache
//
// # Инварианты
//
// Сумма никогда не бывает отрицательной: NewAmount и Subtract возвращают
// ErrInvalidAmount вместо отрицательного значения. Начисление оплачивается
// ровно один раз и только целиком. Баланс счёта равен totalCharged - totalPaid
// и всегда неотрицателен.
//
// # Пример
//
//	account, err := fees.NewAccount("student-42")
//	feeID, err := account.AddFee(decimal.NewFromInt(300), dueDate)
//	err = account.PayFee(feeID)
//	balance := account.Balance()
//
// Сохранение и загрузка идут через плоскую запись:
//
//	record := account.ToRecord()
//	restored, err := fees.FromRecord(record)
//
// restored ведёт себя так же, как account: тот же баланс, те же
// просроченные начисления, те же ID.
package fees
