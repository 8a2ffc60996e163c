package rewards

import (
	"context"
	"fmt"
	"math"
)

// Purchase buys quantity units of productID with points. Stock, the order row
// and the FIFO spend commit together or not at all.
func (service *Service) Purchase(ctx context.Context, userID UserID, productID ProductID, quantity int64) (OrderSnapshot, error) {
	operationID := newOperationID()
	snapshot, err := service.purchase(ctx, userID, productID, quantity)
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationPurchase,
		UserID:      userID,
		Amount:      snapshot.TotalPrice,
		ReferenceID: snapshot.ID.Int64(),
		Error:       err,
	})
	if err != nil {
		return OrderSnapshot{}, err
	}
	service.publish(ctx, Event{
		Type:        EventOrderCompleted,
		OperationID: operationID,
		UserID:      userID.Int64(),
		Amount:      snapshot.TotalPrice.Int64(),
		ReferenceID: snapshot.ID.Int64(),
	})
	return snapshot, nil
}

func (service *Service) purchase(ctx context.Context, userID UserID, productID ProductID, quantity int64) (OrderSnapshot, error) {
	if userID <= 0 {
		return OrderSnapshot{}, fmt.Errorf("%w: must be positive", ErrInvalidUserID)
	}
	if productID <= 0 {
		return OrderSnapshot{}, fmt.Errorf("%w: must be positive", ErrInvalidProductID)
	}
	if quantity <= 0 {
		return OrderSnapshot{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	var snapshot OrderSnapshot
	err := service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
		// The user lock is always taken before the product row.
		user, err := transactionStore.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		product, err := transactionStore.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Active {
			return fmt.Errorf("%w: product %d", ErrProductUnavailable, productID)
		}
		if product.Stock < quantity {
			return InsufficientStockError{ProductID: productID, Requested: quantity, Available: product.Stock}
		}
		if product.Price > 0 && quantity > math.MaxInt64/product.Price.Int64() {
			return fmt.Errorf("%w: total price overflows for quantity %d", ErrInvalidQuantity, quantity)
		}
		totalPrice := product.Price * Points(quantity)
		if err := transactionStore.AdjustProductStock(ctx, productID, -quantity); err != nil {
			return err
		}
		order, err := transactionStore.InsertOrder(ctx, Order{
			UserID:      userID,
			ProductID:   productID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    quantity,
			TotalPrice:  totalPrice,
			Status:      OrderCompleted,
			CreatedAt:   service.now(),
		})
		if err != nil {
			return err
		}
		balance := user.CurrentPoint
		if totalPrice > 0 {
			balance, err = service.spendFIFO(ctx, transactionStore, spendRequest{
				userID:        userID,
				amount:        totalPrice,
				referenceType: ReferenceOrder,
				referenceID:   order.ID.Int64(),
				metadata:      orderMetadata(order),
			})
			if err != nil {
				return err
			}
		}
		snapshot = OrderSnapshot{Order: order, BalanceAfter: balance}
		return nil
	})
	if err != nil {
		return OrderSnapshot{}, err
	}
	return snapshot, nil
}

// CancelOrder cancels a completed order, restores its stock and refunds the
// total as a fresh lot. Spent points never block it.
func (service *Service) CancelOrder(ctx context.Context, orderID OrderID) (OrderSnapshot, error) {
	operationID := newOperationID()
	snapshot, err := service.cancelOrder(ctx, orderID)
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationCancelOrder,
		UserID:      snapshot.UserID,
		Amount:      snapshot.TotalPrice,
		ReferenceID: orderID.Int64(),
		Error:       err,
	})
	if err != nil {
		return OrderSnapshot{}, err
	}
	service.publish(ctx, Event{
		Type:        EventOrderCancelled,
		OperationID: operationID,
		UserID:      snapshot.UserID.Int64(),
		Amount:      snapshot.TotalPrice.Int64(),
		ReferenceID: orderID.Int64(),
	})
	return snapshot, nil
}

func (service *Service) cancelOrder(ctx context.Context, orderID OrderID) (OrderSnapshot, error) {
	if orderID <= 0 {
		return OrderSnapshot{}, fmt.Errorf("%w: must be positive", ErrInvalidOrderID)
	}
	var snapshot OrderSnapshot
	err := service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
		order, err := transactionStore.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderCancelled {
			return fmt.Errorf("%w: order %d", ErrAlreadyCancelled, orderID)
		}
		user, err := transactionStore.LockUser(ctx, order.UserID)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateOrderStatus(ctx, orderID, OrderCompleted, OrderCancelled); err != nil {
			return err
		}
		if err := transactionStore.AdjustProductStock(ctx, order.ProductID, order.Quantity); err != nil {
			return err
		}
		balance := user.CurrentPoint
		if order.TotalPrice > 0 {
			_, balance, err = service.refundAsNewLot(ctx, transactionStore, order, orderMetadata(order))
			if err != nil {
				return err
			}
		}
		order.Status = OrderCancelled
		snapshot = OrderSnapshot{Order: order, BalanceAfter: balance}
		return nil
	})
	if err != nil {
		return OrderSnapshot{}, err
	}
	return snapshot, nil
}

func orderMetadata(order Order) MetadataJSON {
	return metadataOf(map[string]any{
		metadataKeyProductID:   order.ProductID.Int64(),
		metadataKeyProductName: order.ProductName,
		metadataKeyQuantity:    order.Quantity,
	})
}
